package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clearscope-labs/clearscope/internal/runtime"
	"github.com/clearscope-labs/clearscope/internal/store"
)

type categoryStore interface {
	CreateCategory(ctx context.Context, name, description string) (string, error)
	ListCategories(ctx context.Context) ([]store.Category, error)
}

type CategoriesHandler struct {
	Store categoryStore
}

func (h *CategoriesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
}

func (h *CategoriesHandler) list(c echo.Context) error {
	items, err := h.Store.ListCategories(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]CategoryResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toCategoryResponse(item))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CategoriesHandler) create(c echo.Context) error {
	var req CategoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	id, err := h.Store.CreateCategory(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return echo.NewHTTPError(http.StatusConflict, "category already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}
