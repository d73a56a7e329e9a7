package search

import (
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// Doc is a resource as seen by the keyword index.
type Doc struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Hit is one keyword or fused search result.
type Hit struct {
	ResourceID string  `json:"resource_id"`
	Name       string  `json:"name"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// Index is an in-memory BM25 index over resources, rebuilt periodically
// from the store and updated on writes.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	meta map[string]Doc
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx, meta: make(map[string]Doc)}, nil
}

// Put adds or replaces one document.
func (x *Index) Put(doc Doc) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.meta[doc.ID] = doc
	return x.idx.Index(doc.ID, doc)
}

// Delete removes a document; unknown ids are a no-op.
func (x *Index) Delete(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.meta, id)
	return x.idx.Delete(id)
}

// Rebuild replaces the whole index with the given documents.
func (x *Index) Rebuild(docs []Doc) error {
	fresh, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	meta := make(map[string]Doc, len(docs))
	for _, doc := range docs {
		if err := fresh.Index(doc.ID, doc); err != nil {
			return err
		}
		meta[doc.ID] = doc
	}
	x.mu.Lock()
	old := x.idx
	x.idx = fresh
	x.meta = meta
	x.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Count returns the number of indexed documents.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.meta)
}

// Search runs a BM25 query-string search and returns the top k hits.
func (x *Index) Search(q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := x.idx.Search(searchReq)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for i, hit := range res.Hits {
		doc := x.meta[hit.ID]
		out = append(out, Hit{
			ResourceID: hit.ID,
			Name:       doc.Name,
			Snippet:    snippet(doc.Content),
			Score:      hit.Score,
			Rank:       i + 1,
		})
	}
	return out, nil
}

// FuseRRF merges two ranked hit lists by reciprocal-rank fusion and
// returns the top k.
func FuseRRF(a, b []Hit, k int) []Hit {
	type agg struct {
		item  Hit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := m[h.ResourceID]
			if !ok {
				m[h.ResourceID] = &agg{item: h}
				x = m[h.ResourceID]
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)
	fused := make([]agg, 0, len(m))
	for _, v := range m {
		fused = append(fused, *v)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		// map iteration order is random; ties need a stable key
		return fused[i].item.ResourceID < fused[j].item.ResourceID
	})
	if k > 0 && len(fused) > k {
		fused = fused[:k]
	}
	out := make([]Hit, len(fused))
	for i, f := range fused {
		f.item.Score = f.score
		f.item.Rank = i + 1
		out[i] = f.item
	}
	return out
}

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[:300] + "…"
}
