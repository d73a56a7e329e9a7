package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clearscope-labs/clearscope/internal/provider"
	"github.com/clearscope-labs/clearscope/internal/retrieval"
	"github.com/clearscope-labs/clearscope/internal/runtime"
	"github.com/clearscope-labs/clearscope/internal/store"
)

type compareService interface {
	Compare(ctx context.Context, companyID, query string, resources []retrieval.ResourceRef) (retrieval.CompareResult, error)
	FindRelevantContent(ctx context.Context, query string, topK int, minSimilarity float64) ([]retrieval.RelevantContent, error)
}

type compareResourceStore interface {
	GetResource(ctx context.Context, id string) (store.Resource, error)
	ListComparisons(ctx context.Context, companyID string, limit int) ([]store.Comparison, error)
}

type CompareHandler struct {
	Store    compareResourceStore
	Comparer compareService
}

func (h *CompareHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("/compare")
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("", h.compare)
	g.GET("/history", h.history)

	k := api.Group("/knowledge")
	k.Use(runtime.EchoAuthMiddleware(secret))
	k.POST("/search", h.knowledgeSearch)
}

// Compare
//
//	@Summary		Query a set of resources
//	@Description	Embeds the query, ranks chunks from the selected resources and synthesises an answer
//	@Tags			compare
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CompareRequest	true	"Compare payload"
//	@Success		200		{object}	retrieval.CompareResult
//	@Failure		400		{object}	HTTPError
//	@Failure		404		{object}	HTTPError
//	@Failure		502		{object}	HTTPError
//	@Router			/api/compare [post]
func (h *CompareHandler) compare(c echo.Context) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if len(req.ResourceIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "resource_ids required")
	}
	ctx := c.Request().Context()

	refs := make([]retrieval.ResourceRef, 0, len(req.ResourceIDs))
	companyID := req.CompanyID
	for _, id := range req.ResourceIDs {
		res, err := h.Store.GetResource(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "resource not found: "+id)
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if companyID == "" {
			companyID = res.CompanyID
		}
		refs = append(refs, retrieval.ResourceRef{ID: res.ID, Name: res.Name})
	}

	result, err := h.Comparer.Compare(ctx, companyID, req.Query, refs)
	if errors.Is(err, provider.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to generate comparison")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *CompareHandler) history(c echo.Context) error {
	items, err := h.Store.ListComparisons(c.Request().Context(), c.QueryParam("company_id"), 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.Comparison{}
	}
	return c.JSON(http.StatusOK, items)
}

// KnowledgeSearch
//
//	@Summary	Global knowledge-base lookup
//	@Tags		compare
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		KnowledgeSearchRequest	true	"Search payload"
//	@Success	200		{array}		retrieval.RelevantContent
//	@Failure	400		{object}	HTTPError
//	@Failure	502		{object}	HTTPError
//	@Router		/api/knowledge/search [post]
func (h *CompareHandler) knowledgeSearch(c echo.Context) error {
	var req KnowledgeSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	hits, err := h.Comparer.FindRelevantContent(c.Request().Context(), req.Query, req.TopK, req.MinSimilarity)
	if errors.Is(err, provider.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to generate embedding")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []retrieval.RelevantContent{}
	}
	return c.JSON(http.StatusOK, hits)
}
