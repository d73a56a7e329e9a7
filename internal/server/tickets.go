package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clearscope-labs/clearscope/internal/runtime"
	"github.com/clearscope-labs/clearscope/internal/store"
)

type ticketStore interface {
	CreateTicket(ctx context.Context, companyID, subject, body string) (string, error)
	GetTicket(ctx context.Context, id string) (store.Ticket, error)
	ListTickets(ctx context.Context, companyID, status string) ([]store.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id, next string) error
}

type TicketsHandler struct {
	Store ticketStore
}

func (h *TicketsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.POST("/:id/status", h.updateStatus)
}

func (h *TicketsHandler) list(c echo.Context) error {
	items, err := h.Store.ListTickets(c.Request().Context(), c.QueryParam("company_id"), c.QueryParam("status"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]TicketResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toTicketResponse(item))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TicketsHandler) create(c echo.Context) error {
	var req TicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CompanyID == "" || req.Subject == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company_id and subject required")
	}
	id, err := h.Store.CreateTicket(c.Request().Context(), req.CompanyID, req.Subject, req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *TicketsHandler) get(c echo.Context) error {
	item, err := h.Store.GetTicket(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toTicketResponse(item))
}

// UpdateStatus applies a workflow transition; disallowed moves are a 400.
func (h *TicketsHandler) updateStatus(c echo.Context) error {
	var req TicketStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Status {
	case store.TicketStatusOpen, store.TicketStatusInProgress, store.TicketStatusResolved, store.TicketStatusClosed:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	err := h.Store.UpdateTicketStatus(c.Request().Context(), c.Param("id"), req.Status)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	if errors.Is(err, store.ErrInvalidTransition) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}
