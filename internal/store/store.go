package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DefaultEmbeddingDimensions indicates the expected length of vectors stored in pgvector columns.
const DefaultEmbeddingDimensions = 1536

// Resource kinds persisted in the resources.kind column.
const (
	ResourceKindPDF      = "pdf"
	ResourceKindDoc      = "doc"
	ResourceKindDocx     = "docx"
	ResourceKindImage    = "image"
	ResourceKindExcel    = "excel"
	ResourceKindAudio    = "audio"
	ResourceKindText     = "text"
	ResourceKindMarkdown = "markdown"
	ResourceKindHTML     = "html"
	ResourceKindURL      = "url"
)

// Ticket statuses persisted in the tickets.status column.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

// Company is an organisation under diligence.
type Company struct {
	ID          string
	Name        string
	Description string
	Sector      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category is a named grouping of resources.
type Category struct {
	ID          string
	Name        string
	Description sql.NullString
	CreatedAt   time.Time
}

// Resource is a document asset owned by a company. Content holds the
// extracted plain text and is immutable after ingestion.
type Resource struct {
	ID          string
	CompanyID   string
	Name        string
	Description sql.NullString
	Kind        string
	Content     sql.NullString
	FileURL     sql.NullString
	CategoryID  sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is one embedded fragment of a resource's content.
type Chunk struct {
	ID         string
	ResourceID string
	Content    string
	Vector     []float32
}

// CandidateChunk is a chunk row joined with its owning resource,
// fetched for in-process ranking.
type CandidateChunk struct {
	ResourceID   string
	ResourceName string
	Content      string
	Vector       []float32
}

// ChunkHit is a database-side similarity search result.
type ChunkHit struct {
	ResourceID string
	Content    string
	Similarity float64
}

// Comparison records an answered comparison query. Write-once.
type Comparison struct {
	ID          string
	CompanyID   string
	Query       string
	Answer      string
	ResourceIDs []string
	CreatedAt   time.Time
}

// Ticket is a support request raised against a company workspace.
type Ticket struct {
	ID        string
	CompanyID string
	Subject   string
	Body      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResourceFilter narrows ListResources. Zero values mean "any".
type ResourceFilter struct {
	CompanyID  string
	CategoryID string
	Kind       string
	Page       int
	PerPage    int
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Company operations
func (s *Store) CreateCompany(ctx context.Context, name, description, sector string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO companies (name, description, sector) VALUES ($1,$2,$3) RETURNING id`, name, description, sector).Scan(&id)
	return id, err
}

func (s *Store) GetCompany(ctx context.Context, id string) (Company, error) {
	var c Company
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, description, sector, created_at, updated_at FROM companies WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.Sector, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, description, sector, created_at, updated_at FROM companies ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Sector, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCompany(ctx context.Context, id, name, description, sector string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE companies SET name=$2, description=$3, sector=$4, updated_at=NOW() WHERE id=$1`, id, name, description, sector)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM companies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Category operations
func (s *Store) CreateCategory(ctx context.Context, name, description string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO resource_categories (name, description) VALUES ($1,$2) RETURNING id`, name, description).Scan(&id)
	return id, err
}

func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, description, created_at FROM resource_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateResourceWithChunks inserts the resource row and all of its chunk
// rows in a single transaction, so a resource is either fully persisted
// with its embeddings or not at all.
func (s *Store) CreateResourceWithChunks(ctx context.Context, res Resource, chunks []Chunk) (string, error) {
	if res.CompanyID == "" {
		return "", fmt.Errorf("company_id required")
	}
	if res.Name == "" {
		return "", fmt.Errorf("name required")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var id string
	err = tx.QueryRowContext(ctx, `
INSERT INTO resources (company_id, name, description, kind, content, file_url, category_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id
`, res.CompanyID, res.Name, res.Description, res.Kind, res.Content, res.FileURL, res.CategoryID).Scan(&id)
	if err != nil {
		return "", err
	}

	if len(chunks) == 0 {
		return id, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO resource_chunks (resource_id, content, embedding)
VALUES ($1,$2,$3::vector)
`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, ch := range chunks {
		if len(ch.Vector) == 0 {
			err = fmt.Errorf("embedding vector required for chunk")
			return "", err
		}
		var lit string
		lit, err = encodeVectorLiteral(ch.Vector)
		if err != nil {
			return "", err
		}
		if _, err = stmt.ExecContext(ctx, id, ch.Content, lit); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (s *Store) GetResource(ctx context.Context, id string) (Resource, error) {
	var r Resource
	err := s.DB.QueryRowContext(ctx, `
SELECT id, company_id, name, description, kind, content, file_url, category_id, created_at, updated_at
FROM resources WHERE id=$1
`, id).Scan(&r.ID, &r.CompanyID, &r.Name, &r.Description, &r.Kind, &r.Content, &r.FileURL, &r.CategoryID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, ErrNotFound
	}
	return r, err
}

func (s *Store) ListResources(ctx context.Context, f ResourceFilter) ([]Resource, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	perPage := f.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, company_id, name, description, kind, content, file_url, category_id, created_at, updated_at
FROM resources
WHERE ($1 = '' OR company_id::text = $1)
  AND ($2 = '' OR category_id::text = $2)
  AND ($3 = '' OR kind = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`, f.CompanyID, f.CategoryID, f.Kind, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Name, &r.Description, &r.Kind, &r.Content, &r.FileURL, &r.CategoryID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateResourceMeta updates the mutable fields of a resource. Extracted
// content is immutable after ingestion and is deliberately not touched.
func (s *Store) UpdateResourceMeta(ctx context.Context, id, name string, description, categoryID sql.NullString) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE resources SET name=$2, description=$3, category_id=$4, updated_at=NOW() WHERE id=$1
`, id, name, description, categoryID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteResource removes the resource; chunk rows go with it via the
// ON DELETE CASCADE foreign key.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM resources WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListChunksByResourceIDs returns every chunk row belonging to the given
// resources, joined with the resource name, unordered and unfiltered.
// Similarity filtering happens in the ranker.
func (s *Store) ListChunksByResourceIDs(ctx context.Context, resourceIDs []string) ([]CandidateChunk, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.resource_id, r.name, c.content, c.embedding::text
FROM resource_chunks c
JOIN resources r ON r.id = c.resource_id
WHERE c.resource_id = ANY($1)
`, pq.Array(resourceIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CandidateChunk
	for rows.Next() {
		var (
			cand CandidateChunk
			lit  string
		)
		if err := rows.Scan(&cand.ResourceID, &cand.ResourceName, &cand.Content, &lit); err != nil {
			return nil, err
		}
		cand.Vector, err = decodeVectorLiteral(lit)
		if err != nil {
			return nil, fmt.Errorf("decode chunk vector: %w", err)
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// SearchChunks ranks chunks database-side by cosine similarity against
// the query vector, keeping rows above minSimilarity, best first.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]ChunkHit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if limit <= 0 {
		limit = 5
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT resource_id, content, 1 - (embedding <=> $1::vector) AS similarity
FROM resource_chunks
WHERE 1 - (embedding <=> $1::vector) > $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`, vecLiteral, minSimilarity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChunkHit
	for rows.Next() {
		var hit ChunkHit
		if err := rows.Scan(&hit.ResourceID, &hit.Content, &hit.Similarity); err != nil {
			return nil, err
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// CountChunks returns the number of chunk rows owned by a resource.
func (s *Store) CountChunks(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM resource_chunks WHERE resource_id=$1`, resourceID).Scan(&n)
	return n, err
}

// Comparison operations
func (s *Store) CreateComparison(ctx context.Context, companyID, query, answer string, resourceIDs []string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query required")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO comparisons (company_id, query, answer, resource_ids)
VALUES ($1,$2,$3,$4) RETURNING id
`, companyID, query, answer, pq.Array(resourceIDs)).Scan(&id)
	return id, err
}

func (s *Store) ListComparisons(ctx context.Context, companyID string, limit int) ([]Comparison, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, company_id, query, answer, resource_ids, created_at
FROM comparisons
WHERE ($1 = '' OR company_id::text = $1)
ORDER BY created_at DESC
LIMIT $2
`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Comparison
	for rows.Next() {
		var c Comparison
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Query, &c.Answer, pq.Array(&c.ResourceIDs), &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ticket operations
func (s *Store) CreateTicket(ctx context.Context, companyID, subject, body string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject required")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO tickets (company_id, subject, body, status) VALUES ($1,$2,$3,$4) RETURNING id
`, companyID, subject, body, TicketStatusOpen).Scan(&id)
	return id, err
}

func (s *Store) GetTicket(ctx context.Context, id string) (Ticket, error) {
	var t Ticket
	err := s.DB.QueryRowContext(ctx, `
SELECT id, company_id, subject, body, status, created_at, updated_at FROM tickets WHERE id=$1
`, id).Scan(&t.ID, &t.CompanyID, &t.Subject, &t.Body, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	return t, err
}

func (s *Store) ListTickets(ctx context.Context, companyID, status string) ([]Ticket, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, company_id, subject, body, status, created_at, updated_at
FROM tickets
WHERE ($1 = '' OR company_id::text = $1)
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
`, companyID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Subject, &t.Body, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ErrInvalidTransition is returned when a ticket status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// UpdateTicketStatus applies a workflow transition. Allowed moves:
// open->in_progress, open->resolved, in_progress->resolved,
// resolved->open (reopen), and any state ->closed.
func (s *Store) UpdateTicketStatus(ctx context.Context, id, next string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM tickets WHERE id=$1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return err
	}
	if err != nil {
		return err
	}
	if !ticketTransitionAllowed(current, next) {
		err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE tickets SET status=$2, updated_at=NOW() WHERE id=$1`, id, next)
	return err
}

func ticketTransitionAllowed(current, next string) bool {
	if next == TicketStatusClosed {
		return current != TicketStatusClosed
	}
	switch current {
	case TicketStatusOpen:
		return next == TicketStatusInProgress || next == TicketStatusResolved
	case TicketStatusInProgress:
		return next == TicketStatusResolved
	case TicketStatusResolved:
		return next == TicketStatusOpen
	}
	return false
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func decodeVectorLiteral(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	lit = strings.TrimPrefix(lit, "[")
	lit = strings.TrimSuffix(lit, "]")
	parts := strings.Split(lit, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector value %q: %w", value, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
