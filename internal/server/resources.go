package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clearscope-labs/clearscope/internal/ingest"
	"github.com/clearscope-labs/clearscope/internal/provider"
	"github.com/clearscope-labs/clearscope/internal/runtime"
	"github.com/clearscope-labs/clearscope/internal/search"
	"github.com/clearscope-labs/clearscope/internal/store"
)

type ingester interface {
	Ingest(ctx context.Context, in ingest.Input) (string, error)
}

type pageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (ingest.Page, error)
}

type ResourcesHandler struct {
	Store    *store.Store
	Pipeline ingester
	Fetcher  pageFetcher
	Index    *search.Index
	MaxBytes int64
}

func (h *ResourcesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.upload)
	g.POST("/url", h.fromURL)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *ResourcesHandler) list(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	filter := store.ResourceFilter{
		CompanyID:  c.QueryParam("company_id"),
		CategoryID: c.QueryParam("category_id"),
		Kind:       c.QueryParam("kind"),
		Page:       page,
		PerPage:    perPage,
	}
	items, err := h.Store.ListResources(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ResourceResponse, 0, len(items))
	for _, item := range items {
		item.Content = nullable("") // listings stay light
		out = append(out, toResourceResponse(item))
	}
	return c.JSON(http.StatusOK, out)
}

// Upload
//
//	@Summary		Ingest an uploaded file
//	@Description	Extracts text, chunks, embeds and stores the resource atomically
//	@Tags			resources
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		201	{object}	IDResponse
//	@Failure		400	{object}	HTTPError
//	@Failure		422	{object}	HTTPError
//	@Failure		502	{object}	HTTPError
//	@Router			/api/resources [post]
func (h *ResourcesHandler) upload(c echo.Context) error {
	companyID := c.FormValue("company_id")
	name := c.FormValue("name")
	if companyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company_id required")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file required")
	}
	if h.MaxBytes > 0 && fh.Size > h.MaxBytes {
		return echo.NewHTTPError(http.StatusBadRequest, "file too large")
	}
	if name == "" {
		name = fh.Filename
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	id, err := h.Pipeline.Ingest(c.Request().Context(), ingest.Input{
		CompanyID:   companyID,
		Name:        name,
		Description: c.FormValue("description"),
		CategoryID:  c.FormValue("category_id"),
		Data:        data,
		MIMEType:    mimeType,
	})
	if err != nil {
		return ingestHTTPError(err)
	}
	h.indexResource(c.Request().Context(), id)
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

// FromURL ingests a web page: headless fetch, readability extraction,
// then the same pipeline as file uploads.
func (h *ResourcesHandler) fromURL(c echo.Context) error {
	var req CreateURLResourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CompanyID == "" || req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company_id and url required")
	}
	page, err := h.Fetcher.Fetch(c.Request().Context(), req.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "failed to process page")
	}
	name := req.Name
	if name == "" {
		name = page.Title
	}
	if name == "" {
		name = req.URL
	}
	id, err := h.Pipeline.Ingest(c.Request().Context(), ingest.Input{
		CompanyID:   req.CompanyID,
		Name:        name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		FileURL:     req.URL,
		Text:        page.Text,
		Kind:        store.ResourceKindURL,
	})
	if err != nil {
		return ingestHTTPError(err)
	}
	h.indexResource(c.Request().Context(), id)
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *ResourcesHandler) get(c echo.Context) error {
	item, err := h.Store.GetResource(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toResourceResponse(item))
}

// Update patches name/description/category. Extracted content is
// immutable after ingestion.
func (h *ResourcesHandler) update(c echo.Context) error {
	var req UpdateResourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	current, err := h.Store.GetResource(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := current.Name
	if req.Name != nil {
		name = *req.Name
	}
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name must not be empty")
	}
	description := current.Description
	if req.Description != nil {
		description = nullable(*req.Description)
	}
	categoryID := current.CategoryID
	if req.CategoryID != nil {
		categoryID = nullable(*req.CategoryID)
	}
	if err := h.Store.UpdateResourceMeta(ctx, current.ID, name, description, categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "resource not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.indexResource(ctx, current.ID)
	return c.NoContent(http.StatusOK)
}

func (h *ResourcesHandler) delete(c echo.Context) error {
	id := c.Param("id")
	err := h.Store.DeleteResource(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Index != nil {
		_ = h.Index.Delete(id)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ResourcesHandler) indexResource(ctx context.Context, id string) {
	if h.Index == nil {
		return
	}
	item, err := h.Store.GetResource(ctx, id)
	if err != nil {
		return
	}
	_ = h.Index.Put(search.Doc{
		ID:          item.ID,
		CompanyID:   item.CompanyID,
		Name:        item.Name,
		Description: item.Description.String,
		Content:     item.Content.String,
	})
}

// ingestHTTPError maps pipeline failures onto client responses without
// leaking provider detail.
func ingestHTTPError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrExtract):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "failed to process file")
	case errors.Is(err, provider.ErrUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, "failed to generate embedding")
	case store.IsUniqueViolation(err):
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
