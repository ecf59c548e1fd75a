package traversal

import (
	"container/heap"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// chunkOutputAlign is the multiple each instance's output length is padded
// to, for the consumer's transfer alignment (spec §4.7 step 5).
const chunkOutputAlign = 16384

// Instance is one camera's view into a registered LoD tree for a single
// Traverse call (spec §4.7 "Traversal").
type Instance struct {
	LodID uint32

	// ViewToObject is the instance's view-to-object transform, column
	// major: columns 0/1/2 are the right/up/(negated)forward axes, column
	// 3 is the camera origin in object space.
	ViewToObject [16]float64

	LodScale       float64
	OutsideFoveate float64
	BehindFoveate  float64

	// ConeFovRadians <= 0 disables cone-mode foveation (the default,
	// frustum-projection attenuation applies instead).
	ConeFovRadians float64
	ConeFoveate    float64
}

// Params bounds one Traverse call: a hard splat budget and the pixel-scale
// threshold below which a node is considered fine enough to emit without
// further expansion (spec §4.7 steps 2-3).
type Params struct {
	MaxSplats       int
	PixelScaleLimit float64
	FovXRadians     float64
	FovYRadians     float64
}

// InstanceResult is one instance's traversal output: the visible node
// indices (in paged-index space, stable-sorted ascending, padded to a
// multiple of 16384) and how many of them are real (the rest are padding
// zeros).
type InstanceResult struct {
	LodID     uint32
	NumSplats int
	Indices   []uint32
}

// TouchedChunk identifies one (instance, chunk) pair a traversal read from,
// for the caller to keep resident on the next frame.
type TouchedChunk struct {
	InstanceIndex int
	Chunk         uint32
}

// frontierEntry is one pending node in the traversal max-heap, keyed by
// pixel scale (largest first).
type frontierEntry struct {
	pixelScale float64
	instance   int
	pagedIndex uint32
}

type frontierHeap []frontierEntry

func (h frontierHeap) Len() int            { return len(h) }
func (h frontierHeap) Less(i, j int) bool  { return h[i].pixelScale > h[j].pixelScale }
func (h frontierHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frontierHeap) Push(x any)         { *h = append(*h, x.(frontierEntry)) }
func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// instanceState is the working state for one Instance across a Traverse
// call: its resolved camera axes/foveation parameters, tree reference, and
// accumulated output.
type instanceState struct {
	tree *tree

	origin, forward, right, up spark.Vec3
	lodScale                   float64
	outsideFoveate             float64
	behindFoveate              float64
	coneDot                    float64
	coneFoveate                float64

	output []uint32
}

func axis(m [16]float64, col int) spark.Vec3 {
	return spark.V3(m[col*4], m[col*4+1], m[col*4+2])
}

// Traverse walks each instance's tree from its root, popping the
// globally-highest-pixel-scale pending node across all instances,
// expanding interior nodes into their children (or emitting the parent
// when a child's chunk isn't resident) until every remaining node is at or
// below pixelScaleLimit or the splat budget is spent (spec §4.7
// "Traversal").
func Traverse(params Params, instances []Instance) ([]InstanceResult, []TouchedChunk, error) {
	mu.Lock()
	defer mu.Unlock()

	xLimit := math.Tan(0.5 * params.FovXRadians)
	yLimit := math.Tan(0.5 * params.FovYRadians)

	states := make([]*instanceState, len(instances))
	for i, inst := range instances {
		t, ok := trees[inst.LodID]
		if !ok {
			return nil, nil, errors.Errorf("traversal: unknown lod id %d", inst.LodID)
		}
		if len(t.nodes) == 0 {
			return nil, nil, errors.Errorf("traversal: lod id %d has no nodes", inst.LodID)
		}
		coneDot := 1.0
		if inst.ConeFovRadians > 0 {
			coneDot = math.Cos(0.5 * inst.ConeFovRadians)
		}
		states[i] = &instanceState{
			tree:           t,
			right:          axis(inst.ViewToObject, 0).Normalize(),
			up:             axis(inst.ViewToObject, 1).Normalize(),
			forward:        axis(inst.ViewToObject, 2).Normalize().Neg(),
			origin:         spark.V3(inst.ViewToObject[12], inst.ViewToObject[13], inst.ViewToObject[14]),
			lodScale:       inst.LodScale,
			outsideFoveate: inst.OutsideFoveate,
			behindFoveate:  inst.BehindFoveate,
			coneDot:        coneDot,
			coneFoveate:    inst.ConeFoveate,
		}
	}

	touchedSeen := make([]map[uint32]bool, len(instances))
	var touched []TouchedChunk
	touchChunk := func(instIdx int, pagedIndex uint32) {
		chunk := pagedIndex >> 16
		if touchedSeen[instIdx] == nil {
			touchedSeen[instIdx] = make(map[uint32]bool)
		}
		if !touchedSeen[instIdx][chunk] {
			touchedSeen[instIdx][chunk] = true
			touched = append(touched, TouchedChunk{InstanceIndex: instIdx, Chunk: chunk})
		}
	}

	frontier := &frontierHeap{}
	heap.Init(frontier)
	numSplats := 0
	for i, st := range states {
		ps := pixelScale(st.tree.nodes[0], st, xLimit, yLimit)
		heap.Push(frontier, frontierEntry{pixelScale: ps, instance: i, pagedIndex: 0})
		numSplats++
		touchChunk(i, 0)
	}

	for frontier.Len() > 0 {
		top := (*frontier)[0]
		if top.pixelScale <= params.PixelScaleLimit {
			break
		}

		st := states[top.instance]
		n := st.tree.nodes[top.pagedIndex]

		if n.childCount == 0 {
			heap.Pop(frontier)
			st.output = append(st.output, top.pagedIndex)
			continue
		}

		// Over budget: touch the child range and emit this node as the
		// best affordable approximation, then stop the whole traversal
		// (spec §8 seed scenario 5).
		newNumSplats := numSplats - 1 + int(n.childCount)
		if newNumSplats > params.MaxSplats {
			heap.Pop(frontier)
			touchChunk(top.instance, n.childStart)
			touchChunk(top.instance, n.childStart+uint32(n.childCount)-1)
			st.output = append(st.output, top.pagedIndex)
			break
		}
		heap.Pop(frontier)

		touchChunk(top.instance, n.childStart)
		touchChunk(top.instance, n.childStart+uint32(n.childCount)-1)

		if !childrenResident(st.tree, n.childStart, n.childCount) {
			st.output = append(st.output, top.pagedIndex)
			continue
		}

		for c := uint32(0); c < uint32(n.childCount); c++ {
			childIndex := n.childStart + c
			childChunk := childIndex >> 16
			childPage := uint32(0)
			if int(childChunk) < len(st.tree.chunkToPage) {
				childPage = st.tree.chunkToPage[childChunk]
			}
			pagedChild := (childPage << 16) | (childIndex & 0xFFFF)
			ps := pixelScale(st.tree.nodes[pagedChild], st, xLimit, yLimit)
			if ps <= params.PixelScaleLimit {
				st.output = append(st.output, pagedChild)
			} else {
				heap.Push(frontier, frontierEntry{pixelScale: ps, instance: top.instance, pagedIndex: pagedChild})
			}
		}
		numSplats = newNumSplats
	}

	for frontier.Len() > 0 {
		e := heap.Pop(frontier).(frontierEntry)
		st := states[e.instance]
		st.output = append(st.output, e.pagedIndex)
		page := e.pagedIndex >> 16
		chunk := uint32(0)
		if int(page) < len(st.tree.pageToChunk) {
			chunk = st.tree.pageToChunk[page]
		}
		touchChunk(e.instance, (chunk<<16)|(e.pagedIndex&0xFFFF))
	}

	results := make([]InstanceResult, len(instances))
	for i, st := range states {
		sort.SliceStable(st.output, func(a, b int) bool { return st.output[a] < st.output[b] })
		padded := make([]uint32, padLen(len(st.output), chunkOutputAlign))
		copy(padded, st.output)
		results[i] = InstanceResult{LodID: instances[i].LodID, NumSplats: len(st.output), Indices: padded}
	}

	return results, touched, nil
}

func padLen(n, align int) int {
	return ((n + align - 1) / align) * align
}

func childrenResident(t *tree, childStart uint32, childCount uint16) bool {
	return isResident(t, childStart) && isResident(t, childStart+uint32(childCount)-1)
}

func isResident(t *tree, index uint32) bool {
	chunk := index >> 16
	if chunk == 0 {
		return true
	}
	if int(chunk) >= len(t.chunkToPage) {
		return false
	}
	return t.chunkToPage[chunk] != 0
}

// pixelScale computes a node's screen-space contribution, attenuated by
// foveation (spec §4.7 "Pixel-scale function").
func pixelScale(n node, st *instanceState, xLimit, yLimit float64) float64 {
	delta := n.center.Sub(st.origin)
	d := delta.Length()
	base := n.size / math.Max(d, 1e-6) * st.lodScale

	forward := delta.Dot(st.forward)
	if forward <= 0 {
		return st.behindFoveate * base
	}

	if st.coneDot == 1.0 {
		x := (delta.Dot(st.right) / forward) / xLimit
		y := (delta.Dot(st.up) / forward) / yLimit
		f := math.Max(math.Abs(x), math.Abs(y))
		var atten float64
		if f <= 1 {
			atten = 1 - f*(1-st.outsideFoveate)
		} else {
			atten = st.outsideFoveate - (st.behindFoveate-st.outsideFoveate)/f
		}
		return atten * base
	}

	dot := forward / d
	t := spark.Clamp((1-dot)/(1-st.coneDot), 0, 1)
	atten := 1 - (1-st.coneFoveate)*t
	return atten * base
}
