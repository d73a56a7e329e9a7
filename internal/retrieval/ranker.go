package retrieval

import (
	"math"
	"sort"
)

// Candidate is a chunk considered for ranking against a query vector.
type Candidate struct {
	ResourceID string
	Name       string
	Content    string
	Vector     []float32
}

// Match is a ranked result.
type Match struct {
	ResourceID string  `json:"resource_id"`
	Name       string  `json:"name"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Cosine returns the cosine similarity of a and b. Mismatched lengths,
// empty vectors and zero magnitudes all score 0 rather than erroring;
// a degenerate vector is a non-match, not a failure.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Ranker scores candidates against a query vector, keeps those above
// MinSimilarity, sorts best first and truncates.
type Ranker struct {
	MinSimilarity float64
}

// Rank returns at most limit matches with similarity strictly above the
// threshold, in descending order. The sort is stable, so candidates with
// equal scores keep their input order. An empty result is not an error.
func (r Ranker) Rank(query []float32, candidates []Candidate, limit int) []Match {
	var matches []Match
	for _, cand := range candidates {
		sim := Cosine(query, cand.Vector)
		if sim <= r.MinSimilarity {
			continue
		}
		matches = append(matches, Match{
			ResourceID: cand.ResourceID,
			Name:       cand.Name,
			Content:    cand.Content,
			Similarity: sim,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
