package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/clearscope-labs/clearscope/internal/provider"
	"github.com/clearscope-labs/clearscope/internal/store"
)

var comparisonsServed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "clearscope_comparisons_total",
	Help: "Number of comparison queries answered.",
})

// NoRelevantContent is the explicit answer returned when no candidate
// clears the similarity threshold.
const NoRelevantContent = "No relevant content was found in the selected resources."

type compareCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

type compareStore interface {
	ListChunksByResourceIDs(ctx context.Context, resourceIDs []string) ([]store.CandidateChunk, error)
	CreateComparison(ctx context.Context, companyID, query, answer string, resourceIDs []string) (string, error)
	SearchChunks(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]store.ChunkHit, error)
}

// ResourceRef names a resource in scope for a comparison.
type ResourceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CompareResult is the outcome of a comparison query.
type CompareResult struct {
	Answer  string  `json:"answer"`
	Matches []Match `json:"matches"`
}

// RelevantContent is one hit from the global knowledge-base lookup.
type RelevantContent struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Comparer answers free-text queries against a set of resources: embed
// the query, fetch the candidate chunks, rank them in process and ask
// the completion model to synthesise an answer from the top matches.
type Comparer struct {
	Store    compareStore
	Provider provider.Provider
	Ranker   Ranker
	TopK     int

	Cache    compareCache
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewComparer wires the comparison flow. cache may be nil.
func NewComparer(st compareStore, p provider.Provider, ranker Ranker, topK int, cache *redis.Client, cacheTTL time.Duration, logger *log.Logger) *Comparer {
	if logger == nil {
		logger = log.New(log.Writer(), "[COMPARE] ", log.LstdFlags)
	}
	if topK <= 0 {
		topK = 5
	}
	c := &Comparer{Store: st, Provider: p, Ranker: ranker, TopK: topK, CacheTTL: cacheTTL, Logger: logger}
	if cache != nil {
		c.Cache = cache
	}
	return c
}

// Compare runs the query flow of the pipeline. The result cap is the
// number of resources in scope.
func (c *Comparer) Compare(ctx context.Context, companyID, query string, resources []ResourceRef) (CompareResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return CompareResult{}, fmt.Errorf("query required")
	}
	if len(resources) == 0 {
		return CompareResult{}, fmt.Errorf("at least one resource required")
	}

	ids := make([]string, len(resources))
	names := make(map[string]string, len(resources))
	for i, r := range resources {
		ids[i] = r.ID
		names[r.ID] = r.Name
	}

	cacheKey := compareCacheKey(query, ids)
	if c.Cache != nil {
		if raw, err := c.Cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached CompareResult
			if json.Unmarshal(raw, &cached) == nil {
				// history records every answered query, cached or not
				if _, err := c.Store.CreateComparison(ctx, companyID, query, cached.Answer, ids); err != nil {
					return CompareResult{}, fmt.Errorf("record comparison: %w", err)
				}
				comparisonsServed.Inc()
				return cached, nil
			}
		}
	}

	vectors, err := c.Provider.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return CompareResult{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return CompareResult{}, fmt.Errorf("embed query: provider returned no vectors")
	}
	queryVec := vectors[0]

	rows, err := c.Store.ListChunksByResourceIDs(ctx, ids)
	if err != nil {
		return CompareResult{}, fmt.Errorf("fetch candidates: %w", err)
	}
	candidates := make([]Candidate, len(rows))
	for i, row := range rows {
		name := row.ResourceName
		if n, ok := names[row.ResourceID]; ok && n != "" {
			name = n
		}
		candidates[i] = Candidate{
			ResourceID: row.ResourceID,
			Name:       name,
			Content:    row.Content,
			Vector:     row.Vector,
		}
	}

	matches := c.Ranker.Rank(queryVec, candidates, len(resources))

	result := CompareResult{Matches: matches}
	if len(matches) == 0 {
		result.Answer = NoRelevantContent
	} else {
		answer, err := c.Provider.Completion(ctx, compareSystemPrompt, buildComparePrompt(query, matches))
		if err != nil {
			return CompareResult{}, fmt.Errorf("generate answer: %w", err)
		}
		result.Answer = answer
	}

	if _, err := c.Store.CreateComparison(ctx, companyID, query, result.Answer, ids); err != nil {
		return CompareResult{}, fmt.Errorf("record comparison: %w", err)
	}
	comparisonsServed.Inc()

	if c.Cache != nil && c.CacheTTL > 0 {
		if raw, err := json.Marshal(result); err == nil {
			if err := c.Cache.Set(ctx, cacheKey, raw, c.CacheTTL).Err(); err != nil {
				c.Logger.Printf("cache comparison failed: %v", err)
			}
		}
	}
	return result, nil
}

// FindRelevantContent is the global, unscoped knowledge-base lookup.
// Ranking happens database-side over the vector index.
func (c *Comparer) FindRelevantContent(ctx context.Context, query string, topK int, minSimilarity float64) ([]RelevantContent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query required")
	}
	if topK <= 0 {
		topK = c.TopK
	}
	if minSimilarity <= 0 {
		minSimilarity = c.Ranker.MinSimilarity
	}
	vectors, err := c.Provider.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: provider returned no vectors")
	}
	hits, err := c.Store.SearchChunks(ctx, vectors[0], minSimilarity, topK)
	if err != nil {
		return nil, err
	}
	out := make([]RelevantContent, len(hits))
	for i, h := range hits {
		out[i] = RelevantContent{Content: h.Content, Similarity: h.Similarity}
	}
	return out, nil
}

const compareSystemPrompt = `You are a due-diligence research assistant. Answer the analyst's question using only the provided excerpts from company resources. Cite resource names when relevant. If the excerpts do not answer the question, say so plainly.`

func buildComparePrompt(query string, matches []Match) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nExcerpts:\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, m.Name, m.Content)
	}
	return b.String()
}

func compareCacheKey(query string, ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(query + "|" + strings.Join(sorted, ",")))
	return "compare:" + hex.EncodeToString(sum[:])
}
