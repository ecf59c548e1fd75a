// Package traversal holds the process-wide registry of loaded LoD trees
// and the per-frame frontier walk that selects a budgeted, foveation-
// weighted subset of each tree's nodes for a set of camera instances
// (spec §4.7, §5, §9 "Global state").
package traversal

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/codec"
)

// firstLodID is the first id init_lod_tree hands out; ids below it are
// never valid, so a zero-value lod_id reliably means "none" to callers.
const firstLodID = 1000

// node is the decoded, in-memory form of one LoD wire node (spec §6
// "LoD-node wire format"): a compact center/size pair plus the child
// range, indexed directly (no pointers) per spec §9's "represent as
// indices into the shared arena" note.
type node struct {
	center     spark.Vec3
	size       float64
	childStart uint32
	childCount uint16
}

// tree is one registered LoD tree: its dense node vector plus the two
// page<->chunk mappings a streamed update can repoint (spec §4.7 "State").
// A mapping slot of 0 means "absent", except slot 0 itself which is
// pinned to identity — the same convention the reference registry uses so
// a freshly grown mapping can be zero-filled for free.
type tree struct {
	nodes       []node
	pageToChunk []uint32
	chunkToPage []uint32
}

var (
	mu     sync.Mutex
	nextID uint32 = firstLodID
	trees         = make(map[uint32]*tree)
)

// setTreeData decodes count wire-format nodes from data and writes them
// into t.nodes[base:base+count], growing the node vector first if needed.
// Mirrors the reference registry's own resize-then-fill sequencing so a
// growing tree never reads past its current capacity mid-decode.
func setTreeData(t *tree, base, count uint32, data []byte) error {
	if uint64(len(data)) < uint64(count)*codec.LodNodeSize {
		return errors.Wrap(spark.ErrMalformed, "traversal: LoD node buffer shorter than count*node size")
	}
	if need := base + count; uint32(len(t.nodes)) < need {
		newSize := uint32(len(t.nodes)) * 2
		if newSize < need {
			newSize = need
		}
		grown := make([]node, newSize)
		copy(grown, t.nodes)
		t.nodes = grown
	}
	for i := uint32(0); i < count; i++ {
		n, err := codec.DecodeLodNode(data[i*codec.LodNodeSize:])
		if err != nil {
			return err
		}
		t.nodes[base+i] = node{center: n.Center, size: n.Size, childStart: n.ChildStart, childCount: n.ChildCount}
	}
	return nil
}

// growMapping extends m to at least need entries, zero-filling the new
// slots ("absent" per the mapping convention above).
func growMapping(m []uint32, need uint32) []uint32 {
	if uint32(len(m)) >= need {
		return m
	}
	grown := make([]uint32, need)
	copy(grown, m)
	return grown
}

func numPages(count uint32) uint32 {
	return (count + 65535) / 65536
}

// InitLodTree registers a new tree over nodeBytes (spec §4.7
// init_lod_tree): allocates a fresh id, sizes the page<->chunk mapping as
// the identity over ⌈num_splats/65536⌉ chunks, and decodes nodeBytes into
// it. Returns the new id and the initial chunk_to_page mapping.
func InitLodTree(numSplats uint32, nodeBytes []byte) (id uint32, chunkToPage []uint32, err error) {
	mu.Lock()
	defer mu.Unlock()

	id = nextID
	nextID++

	pages := numPages(numSplats)
	t := &tree{
		nodes:       make([]node, 0, numSplats),
		pageToChunk: make([]uint32, pages),
		chunkToPage: make([]uint32, pages),
	}
	for p := uint32(0); p < pages; p++ {
		t.pageToChunk[p] = p
		t.chunkToPage[p] = p
	}
	trees[id] = t

	if err := setTreeData(t, 0, numSplats, nodeBytes); err != nil {
		delete(trees, id)
		return 0, nil, err
	}

	spark.Logger().Info("traversal: registered lod tree", "id", id, "splats", numSplats)
	return id, append([]uint32(nil), t.chunkToPage...), nil
}

// DisposeLodTree drops a registered tree. Disposing an unknown id is a
// no-op, matching the reference's unconditional map removal.
func DisposeLodTree(id uint32) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := trees[id]; ok {
		spark.Logger().Info("traversal: disposed lod tree", "id", id)
	}
	delete(trees, id)
}

// TreeUpdate describes one tree's contribution to a bulk InsertLodTrees or
// ClearLodTrees call: the chunk range [chunkBase, chunkBase+count) is
// re-linked to (or, for Clear, unlinked from) the page range starting at
// pageBase.
type TreeUpdate struct {
	ID        uint32
	PageBase  uint32
	ChunkBase uint32
	Count     uint32
	NodeBytes []byte // only consulted by InsertLodTrees
}

// InsertLodTrees bulk-installs or updates contiguous chunk ranges across
// one or more trees (spec §4.7 insert_lod_trees), resizing each tree's
// page<->chunk mapping as needed and decoding the accompanying node bytes
// into place. Returns, per touched tree id, its resulting chunk_to_page
// mapping.
func InsertLodTrees(updates []TreeUpdate) (map[uint32][]uint32, error) {
	mu.Lock()
	defer mu.Unlock()

	touched := make(map[uint32][]uint32)
	for _, u := range updates {
		t, ok := trees[u.ID]
		if !ok {
			t = &tree{}
			trees[u.ID] = t
		}
		pages := numPages(u.Count)

		basePage := u.PageBase >> 16
		baseChunk := u.ChunkBase >> 16
		t.pageToChunk = growMapping(t.pageToChunk, basePage+pages)
		t.chunkToPage = growMapping(t.chunkToPage, baseChunk+pages)

		for p := uint32(0); p < pages; p++ {
			t.pageToChunk[basePage+p] = baseChunk + p
			t.chunkToPage[baseChunk+p] = basePage + p
		}

		if err := setTreeData(t, u.PageBase, u.Count, u.NodeBytes); err != nil {
			return nil, err
		}

		if _, already := touched[u.ID]; !already {
			touched[u.ID] = append([]uint32(nil), t.chunkToPage...)
		}
	}
	return touched, nil
}

// ClearLodTrees zeroes the page<->chunk mapping slots for the given
// ranges (spec §4.7 clear_lod_trees), treating 0 as "absent" except for
// slot 0 itself, which stays pinned to identity. Returns, per touched tree
// id, its resulting chunk_to_page mapping.
func ClearLodTrees(updates []TreeUpdate) (map[uint32][]uint32, error) {
	mu.Lock()
	defer mu.Unlock()

	touched := make(map[uint32][]uint32)
	for _, u := range updates {
		t, ok := trees[u.ID]
		if !ok {
			return nil, errors.Errorf("traversal: clear_lod_trees: unknown lod id %d", u.ID)
		}
		pages := numPages(u.Count)
		basePage := u.PageBase >> 16
		baseChunk := u.ChunkBase >> 16

		for p := uint32(0); p < pages; p++ {
			page, chunk := basePage+p, baseChunk+p
			if page != 0 && int(page) < len(t.pageToChunk) {
				t.pageToChunk[page] = 0
			}
			if chunk != 0 && int(chunk) < len(t.chunkToPage) {
				t.chunkToPage[chunk] = 0
			}
		}

		if _, already := touched[u.ID]; !already {
			touched[u.ID] = append([]uint32(nil), t.chunkToPage...)
		}
	}
	return touched, nil
}
