package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clearscope-labs/clearscope/internal/runtime"
	"github.com/clearscope-labs/clearscope/internal/store"
)

type companyStore interface {
	CreateCompany(ctx context.Context, name, description, sector string) (string, error)
	GetCompany(ctx context.Context, id string) (store.Company, error)
	ListCompanies(ctx context.Context) ([]store.Company, error)
	UpdateCompany(ctx context.Context, id, name, description, sector string) error
	DeleteCompany(ctx context.Context, id string) error
}

type CompaniesHandler struct {
	Store companyStore
}

func (h *CompaniesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *CompaniesHandler) list(c echo.Context) error {
	items, err := h.Store.ListCompanies(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]CompanyResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toCompanyResponse(item))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CompaniesHandler) create(c echo.Context) error {
	var req CompanyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	id, err := h.Store.CreateCompany(c.Request().Context(), req.Name, req.Description, req.Sector)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return echo.NewHTTPError(http.StatusConflict, "company already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *CompaniesHandler) get(c echo.Context) error {
	item, err := h.Store.GetCompany(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "company not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toCompanyResponse(item))
}

func (h *CompaniesHandler) update(c echo.Context) error {
	var req CompanyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	err := h.Store.UpdateCompany(c.Request().Context(), c.Param("id"), req.Name, req.Description, req.Sector)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "company not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *CompaniesHandler) delete(c echo.Context) error {
	err := h.Store.DeleteCompany(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "company not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
