package traversal

import (
	"testing"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/codec"
)

func encodeNodes(t *testing.T, nodes []codec.LodNode) []byte {
	t.Helper()
	var buf []byte
	for _, n := range nodes {
		buf = codec.EncodeLodNode(buf, n)
	}
	return buf
}

func leafNode(x float64) codec.LodNode {
	return codec.LodNode{Center: spark.V3(x, 0, 0), Size: 0.1}
}

func TestInitLodTreeAssignsIncreasingIDs(t *testing.T) {
	bytes := encodeNodes(t, []codec.LodNode{leafNode(0)})

	id1, chunkToPage1, err := InitLodTree(1, bytes)
	if err != nil {
		t.Fatalf("InitLodTree: %v", err)
	}
	id2, _, err := InitLodTree(1, bytes)
	if err != nil {
		t.Fatalf("InitLodTree: %v", err)
	}
	defer DisposeLodTree(id1)
	defer DisposeLodTree(id2)

	if id2 != id1+1 {
		t.Fatalf("expected sequential ids, got %d then %d", id1, id2)
	}
	if len(chunkToPage1) != 1 || chunkToPage1[0] != 0 {
		t.Fatalf("expected identity chunk_to_page [0], got %v", chunkToPage1)
	}
}

func TestDisposeLodTreeUnknownIDIsNoOp(t *testing.T) {
	DisposeLodTree(999999)
}

func TestInsertLodTreesGrowsMapping(t *testing.T) {
	bytes := encodeNodes(t, []codec.LodNode{leafNode(0)})
	id, _, err := InitLodTree(1, bytes)
	if err != nil {
		t.Fatalf("InitLodTree: %v", err)
	}
	defer DisposeLodTree(id)

	moreBytes := encodeNodes(t, []codec.LodNode{leafNode(1)})
	touched, err := InsertLodTrees([]TreeUpdate{
		{ID: id, PageBase: 1 << 16, ChunkBase: 1 << 16, Count: 1, NodeBytes: moreBytes},
	})
	if err != nil {
		t.Fatalf("InsertLodTrees: %v", err)
	}
	mapping, ok := touched[id]
	if !ok {
		t.Fatalf("expected tree %d in touched result", id)
	}
	if len(mapping) != 2 || mapping[0] != 0 || mapping[1] != 1 {
		t.Fatalf("expected chunk_to_page [0 1], got %v", mapping)
	}
}

func TestClearLodTreesZeroesSlotButKeepsSlotZeroPinned(t *testing.T) {
	bytes := encodeNodes(t, []codec.LodNode{leafNode(0)})
	id, _, err := InitLodTree(1, bytes)
	if err != nil {
		t.Fatalf("InitLodTree: %v", err)
	}
	defer DisposeLodTree(id)

	moreBytes := encodeNodes(t, []codec.LodNode{leafNode(1)})
	if _, err := InsertLodTrees([]TreeUpdate{
		{ID: id, PageBase: 1 << 16, ChunkBase: 1 << 16, Count: 1, NodeBytes: moreBytes},
	}); err != nil {
		t.Fatalf("InsertLodTrees: %v", err)
	}

	touched, err := ClearLodTrees([]TreeUpdate{
		{ID: id, PageBase: 1 << 16, ChunkBase: 1 << 16, Count: 1},
	})
	if err != nil {
		t.Fatalf("ClearLodTrees: %v", err)
	}
	mapping := touched[id]
	if len(mapping) != 2 || mapping[0] != 0 || mapping[1] != 0 {
		t.Fatalf("expected chunk_to_page [0 0] after clear, got %v", mapping)
	}
}
