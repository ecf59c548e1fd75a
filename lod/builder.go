// Package lod builds and linearizes a level-of-detail tree over a flat
// splat array ("quick-lod", spec §4.6): bottom-up covariance-weighted
// merging of spatially co-located splats into coarser interior nodes,
// followed by a streaming-friendly chunk linearization pass.
package lod

import (
	"math"
	"sort"

	set3 "github.com/TomTonic/Set3"
	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/splat"
)

// chunkLevels is the number of tree levels peeled off per streaming
// chunk during linearization (spec §4.6 Phase 4).
const chunkLevels = 2

// noParentFrontier marks the synthetic root entry in the chunking
// frontier queue, which has no parent to back-patch a child range into.
const noParentFrontier = -1

// activeEntry is one splat under consideration during a level of the
// builder's grouping pass.
type activeEntry struct {
	idx  int
	cell [3]int64
	key  [2]uint64
}

// frontierItem is one pending group in the chunk-linearization deque:
// parent is the tree index whose ChildStart/ChildCount should be
// back-patched to the range these nodes land in, or noParentFrontier for
// the synthetic root entry.
type frontierItem struct {
	parent int
	nodes  []int
}

// BuildLodTree turns a flat splat array into a bottom-up LoD tree in
// place: it drops degenerate splats, repeatedly merges spatially
// co-located groups into coarser representative splats, linearizes the
// result into 65536-splat streaming chunks, and remaps interior-node
// opacity into [1,2] (spec §4.6). lodBase must be > 1; mergeFilter
// enables the (0.5*step)^2 Gaussian low-pass diagonal term added to
// parent covariances.
func BuildLodTree(a *splat.GsplatArray, lodBase float64, mergeFilter bool) error {
	if lodBase <= 1 {
		return errors.Errorf("lod: lod_base %v must be > 1", lodBase)
	}

	a.Retain(func(i int) bool {
		g := a.Splats[i]
		return g.Opacity > 0 && g.MaxScale() > 0
	})

	numInitial := a.NumSplats()
	a.EnsureLodTree()
	if numInitial == 0 {
		return nil
	}

	a.SortByFeatureSize()
	if err := a.ComputeExtras(); err != nil {
		return err
	}
	for i := 0; i < numInitial; i++ {
		fs := a.Splats[i].FeatureSize()
		a.Extras[i].Level = int16(math.Ceil(math.Log(fs) / math.Log(lodBase)))
	}

	level := int(a.Extras[0].Level)
	frontier := 0
	var carry []int
	children := make(map[int][]int)

	for {
		step := math.Pow(lodBase, float64(level))

		var active []activeEntry
		for frontier < numInitial && int(a.Extras[frontier].Level) <= level {
			cell := gridCell(a.Splats[frontier].Center, step)
			active = append(active, activeEntry{idx: frontier, cell: cell, key: mortonKey(cell)})
			frontier++
		}
		for _, idx := range carry {
			cell := gridCell(a.Splats[idx].Center, step)
			active = append(active, activeEntry{idx: idx, cell: cell, key: mortonKey(cell)})
		}

		sort.SliceStable(active, func(i, j int) bool { return mortonLess(active[i].key, active[j].key) })

		var nextCarry []int
		groupCount := 0
		for i := 0; i < len(active); {
			j := i + 1
			for j < len(active) && active[j].cell == active[i].cell {
				j++
			}
			groupCount++
			group := active[i:j]
			if len(group) > 1 {
				indices := make([]int, len(group))
				for k, e := range group {
					indices[k] = e.idx
				}
				mergeStep := 0.0
				if mergeFilter {
					mergeStep = step
				}
				newIdx := appendNode(a, mergeGroup(a, indices, mergeStep))
				a.Extras[newIdx].Level = int16(level + 1)
				children[newIdx] = indices
				for _, ci := range indices {
					a.Extras[ci].Parent = newIdx
				}
				nextCarry = append(nextCarry, newIdx)
			} else {
				nextCarry = append(nextCarry, group[0].idx)
			}
			i = j
		}

		carry = nextCarry
		if frontier == numInitial && groupCount == 1 {
			break
		}
		level++
	}

	var rootIndex int
	if len(carry) > 1 {
		level++
		step := math.Pow(lodBase, float64(level))
		mergeStep := 0.0
		if mergeFilter {
			mergeStep = step
		}
		rootIndex = appendNode(a, mergeGroup(a, carry, mergeStep))
		a.Extras[rootIndex].Level = int16(level + 1)
		children[rootIndex] = append([]int(nil), carry...)
		for _, ci := range carry {
			a.Extras[ci].Parent = rootIndex
		}
	} else {
		rootIndex = carry[0]
	}

	indices := make([]int, 0, len(a.Splats))
	frontierQ := []frontierItem{{parent: noParentFrontier, nodes: []int{rootIndex}}}
	chunkLevel := level

	for len(frontierQ) > 0 {
		remaining := frontierQ
		frontierQ = nil

		for len(remaining) > 0 {
			item := remaining[0]
			remaining = remaining[1:]

			if item.parent != noParentFrontier {
				a.Extras[item.parent].ChildStart = item.nodes[0]
				a.Extras[item.parent].ChildCount = len(item.nodes)
			}

			for _, node := range item.nodes {
				nodeChildren := children[node]
				delete(children, node)
				if len(nodeChildren) > 0 {
					childLevel := int(a.Extras[nodeChildren[0]].Level)
					for _, c := range nodeChildren[1:] {
						if l := int(a.Extras[c].Level); l > childLevel {
							childLevel = l
						}
					}
					if childLevel <= chunkLevel-chunkLevels {
						frontierQ = append(frontierQ, frontierItem{parent: node, nodes: nodeChildren})
					} else {
						remaining = append([]frontierItem{{parent: node, nodes: nodeChildren}}, remaining...)
					}
				}
				indices = append(indices, node)
			}
		}

		chunkLevel -= chunkLevels
	}

	if !isPermutationOf(indices, len(a.Splats)) {
		return errors.Errorf("lod: chunk linearization produced %d indices for %d splats, or a duplicate/gap", len(indices), len(a.Splats))
	}
	if err := a.Permute(indices); err != nil {
		return err
	}

	for i := range a.Splats {
		if a.Splats[i].Opacity > 1 {
			d := a.Splats[i].Dilation()
			a.Splats[i].Opacity = spark.Clamp(0.25*(d-1)+1, 1, 2)
		}
	}

	return nil
}

// isPermutationOf reports whether indices is exactly a reordering of
// [0,n): same length, and the same set of values as the full range, which
// together rule out both duplicates and gaps.
func isPermutationOf(indices []int, n int) bool {
	if len(indices) != n {
		return false
	}
	seen := set3.EmptyWithCapacity[int](uint32(n))
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return false
		}
		seen.Add(idx)
	}
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	return seen.Equals(set3.From(want...))
}
