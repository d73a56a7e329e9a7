package server

import (
	"database/sql"
	"time"

	"github.com/clearscope-labs/clearscope/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// CompanyRequest creates or updates a company.
type CompanyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Sector      string `json:"sector"`
}

// CompanyResponse is a company view.
type CompanyResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Sector      string    `json:"sector"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CategoryRequest creates a resource category.
type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CategoryResponse is a category view.
type CategoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResourceResponse is a resource view. Content is the extracted plain
// text kept for reference; clients usually only need the metadata.
type ResourceResponse struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Kind        string    `json:"kind"`
	Content     string    `json:"content,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateURLResourceRequest ingests a web page as a resource.
type CreateURLResourceRequest struct {
	CompanyID   string `json:"company_id"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
}

// UpdateResourceRequest patches mutable resource metadata. Nil fields
// are left unchanged.
type UpdateResourceRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
}

// TicketRequest opens a support ticket.
type TicketRequest struct {
	CompanyID string `json:"company_id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// TicketStatusRequest moves a ticket through its workflow.
type TicketStatusRequest struct {
	Status string `json:"status"`
}

// TicketResponse is a ticket view.
type TicketResponse struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompareRequest asks a question against a set of resources.
type CompareRequest struct {
	CompanyID   string   `json:"company_id"`
	Query       string   `json:"query"`
	ResourceIDs []string `json:"resource_ids"`
}

// KnowledgeSearchRequest is the global knowledge-base lookup payload.
type KnowledgeSearchRequest struct {
	Query         string  `json:"query"`
	TopK          int     `json:"top_k"`
	MinSimilarity float64 `json:"min_similarity"`
}

func toCompanyResponse(c store.Company) CompanyResponse {
	return CompanyResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Sector:      c.Sector,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toCategoryResponse(c store.Category) CategoryResponse {
	return CategoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description.String,
		CreatedAt:   c.CreatedAt,
	}
}

func toResourceResponse(r store.Resource) ResourceResponse {
	return ResourceResponse{
		ID:          r.ID,
		CompanyID:   r.CompanyID,
		Name:        r.Name,
		Description: r.Description.String,
		Kind:        r.Kind,
		Content:     r.Content.String,
		FileURL:     r.FileURL.String,
		CategoryID:  r.CategoryID.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toTicketResponse(t store.Ticket) TicketResponse {
	return TicketResponse{
		ID:        t.ID,
		CompanyID: t.CompanyID,
		Subject:   t.Subject,
		Body:      t.Body,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
