package search

import "testing"

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return idx
}

func TestIndexPutAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	docs := []Doc{
		{ID: "r1", Name: "Financial model", Content: "revenue projections and burn rate"},
		{ID: "r2", Name: "Pitch deck", Content: "market sizing and competition"},
		{ID: "r3", Name: "Cap table", Content: "ownership and dilution"},
	}
	for _, d := range docs {
		if err := idx.Put(d); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	hits, err := idx.Search("revenue", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ResourceID != "r1" || hits[0].Name != "Financial model" {
		t.Fatalf("unexpected hit: %+v", hits[0])
	}
	if hits[0].Rank != 1 {
		t.Fatalf("expected rank 1, got %d", hits[0].Rank)
	}
}

func TestIndexDelete(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Put(Doc{ID: "r1", Name: "Board minutes", Content: "quarterly review"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := idx.Delete("r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	hits, err := idx.Search("quarterly", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after delete, got %d", len(hits))
	}
}

func TestIndexRebuildReplacesContents(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Put(Doc{ID: "stale", Name: "Old doc", Content: "obsolete"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := idx.Rebuild([]Doc{
		{ID: "r1", Name: "Fresh doc", Content: "current diligence notes"},
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if idx.Count() != 1 {
		t.Fatalf("expected 1 doc, got %d", idx.Count())
	}
	hits, err := idx.Search("obsolete", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatal("stale doc still searchable after rebuild")
	}
}

func TestFuseRRF(t *testing.T) {
	keyword := []Hit{
		{ResourceID: "a", Name: "A", Rank: 1},
		{ResourceID: "b", Name: "B", Rank: 2},
	}
	vector := []Hit{
		{ResourceID: "b", Rank: 1},
		{ResourceID: "c", Rank: 2},
	}
	fused := FuseRRF(keyword, vector, 10)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused hits, got %d", len(fused))
	}
	// b appears in both lists and must rank first
	if fused[0].ResourceID != "b" {
		t.Fatalf("expected b first, got %s", fused[0].ResourceID)
	}
	for i, h := range fused {
		if h.Rank != i+1 {
			t.Fatalf("ranks not renumbered: %+v", fused)
		}
	}
}

func TestFuseRRFTieOrderIsDeterministic(t *testing.T) {
	// x and y get identical RRF scores: each appears at rank 1 in one list
	keyword := []Hit{{ResourceID: "y", Rank: 1}}
	vector := []Hit{{ResourceID: "x", Rank: 1}}
	for i := 0; i < 20; i++ {
		fused := FuseRRF(keyword, vector, 10)
		if len(fused) != 2 {
			t.Fatalf("expected 2 fused hits, got %d", len(fused))
		}
		if fused[0].ResourceID != "x" || fused[1].ResourceID != "y" {
			t.Fatalf("tie order changed on run %d: %+v", i, fused)
		}
	}
}

func TestFuseRRFTruncates(t *testing.T) {
	a := []Hit{{ResourceID: "a", Rank: 1}, {ResourceID: "b", Rank: 2}, {ResourceID: "c", Rank: 3}}
	fused := FuseRRF(a, nil, 2)
	if len(fused) != 2 {
		t.Fatalf("expected 2, got %d", len(fused))
	}
}
