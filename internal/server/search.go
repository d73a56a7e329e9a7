package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clearscope-labs/clearscope/internal/provider"
	"github.com/clearscope-labs/clearscope/internal/runtime"
	"github.com/clearscope-labs/clearscope/internal/search"
	"github.com/clearscope-labs/clearscope/internal/store"
)

type searchVectorStore interface {
	SearchChunks(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]store.ChunkHit, error)
}

type searchEmbedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchHandler serves keyword (BM25) and hybrid (BM25 + vector,
// rank-fused) search over resources.
type SearchHandler struct {
	Index         *search.Index
	Store         searchVectorStore
	Embedder      searchEmbedder
	TopK          int
	MinSimilarity float64
}

func (h *SearchHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.search)
}

func (h *SearchHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	mode := c.QueryParam("mode")
	if mode == "" {
		mode = "keyword"
	}
	topK := h.TopK
	if topK <= 0 {
		topK = 10
	}

	keyword, err := h.Index.Search(q, topK)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	switch mode {
	case "keyword":
		if keyword == nil {
			keyword = []search.Hit{}
		}
		return c.JSON(http.StatusOK, keyword)
	case "hybrid":
		vector, err := h.vectorHits(c.Request().Context(), q, topK)
		if errors.Is(err, provider.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to generate embedding")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		fused := search.FuseRRF(keyword, vector, topK)
		if fused == nil {
			fused = []search.Hit{}
		}
		return c.JSON(http.StatusOK, fused)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be keyword or hybrid")
	}
}

func (h *SearchHandler) vectorHits(ctx context.Context, q string, topK int) ([]search.Hit, error) {
	vectors, err := h.Embedder.CreateEmbedding(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	hits, err := h.Store.SearchChunks(ctx, vectors[0], h.MinSimilarity, topK)
	if err != nil {
		return nil, err
	}
	out := make([]search.Hit, len(hits))
	for i, hit := range hits {
		out[i] = search.Hit{
			ResourceID: hit.ResourceID,
			Snippet:    hit.Content,
			Score:      hit.Similarity,
			Rank:       i + 1,
		}
	}
	return out, nil
}
