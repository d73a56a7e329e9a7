package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clearscope-labs/clearscope/internal/ingest"
	"github.com/clearscope-labs/clearscope/internal/provider"
	"github.com/clearscope-labs/clearscope/internal/retrieval"
	"github.com/clearscope-labs/clearscope/internal/store"
)

func newJSONContext(t *testing.T, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

// ---- companies ----

type stubCompanyStore struct {
	companies map[string]store.Company
	createdID string
}

func (s *stubCompanyStore) CreateCompany(ctx context.Context, name, description, sector string) (string, error) {
	return s.createdID, nil
}

func (s *stubCompanyStore) GetCompany(ctx context.Context, id string) (store.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return store.Company{}, store.ErrNotFound
	}
	return c, nil
}

func (s *stubCompanyStore) ListCompanies(ctx context.Context) ([]store.Company, error) {
	var out []store.Company
	for _, c := range s.companies {
		out = append(out, c)
	}
	return out, nil
}

func (s *stubCompanyStore) UpdateCompany(ctx context.Context, id, name, description, sector string) error {
	if _, ok := s.companies[id]; !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *stubCompanyStore) DeleteCompany(ctx context.Context, id string) error {
	if _, ok := s.companies[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.companies, id)
	return nil
}

func TestCompaniesCreate(t *testing.T) {
	h := &CompaniesHandler{Store: &stubCompanyStore{createdID: "comp-1"}}

	c, rec := newJSONContext(t, http.MethodPost, "/api/companies", `{"name":"Acme","sector":"fintech"}`)
	if err := h.create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp IDResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "comp-1" {
		t.Fatalf("unexpected id: %s", resp.ID)
	}
}

func TestCompaniesCreateRequiresName(t *testing.T) {
	h := &CompaniesHandler{Store: &stubCompanyStore{}}
	c, _ := newJSONContext(t, http.MethodPost, "/api/companies", `{"sector":"fintech"}`)
	if code := httpCode(t, h.create(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestCompaniesGetNotFound(t *testing.T) {
	h := &CompaniesHandler{Store: &stubCompanyStore{companies: map[string]store.Company{}}}
	c, _ := newJSONContext(t, http.MethodGet, "/api/companies/missing", "")
	c.SetParamNames("id")
	c.SetParamValues("missing")
	if code := httpCode(t, h.get(c)); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestCompaniesDelete(t *testing.T) {
	st := &stubCompanyStore{companies: map[string]store.Company{"comp-1": {ID: "comp-1", Name: "Acme"}}}
	h := &CompaniesHandler{Store: st}
	c, rec := newJSONContext(t, http.MethodDelete, "/api/companies/comp-1", "")
	c.SetParamNames("id")
	c.SetParamValues("comp-1")
	if err := h.delete(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(st.companies) != 0 {
		t.Fatal("company not deleted")
	}
}

// ---- tickets ----

type stubTicketStore struct {
	tickets map[string]store.Ticket
}

func (s *stubTicketStore) CreateTicket(ctx context.Context, companyID, subject, body string) (string, error) {
	return "tick-1", nil
}

func (s *stubTicketStore) GetTicket(ctx context.Context, id string) (store.Ticket, error) {
	tk, ok := s.tickets[id]
	if !ok {
		return store.Ticket{}, store.ErrNotFound
	}
	return tk, nil
}

func (s *stubTicketStore) ListTickets(ctx context.Context, companyID, status string) ([]store.Ticket, error) {
	var out []store.Ticket
	for _, tk := range s.tickets {
		out = append(out, tk)
	}
	return out, nil
}

func (s *stubTicketStore) UpdateTicketStatus(ctx context.Context, id, next string) error {
	tk, ok := s.tickets[id]
	if !ok {
		return store.ErrNotFound
	}
	if tk.Status == store.TicketStatusClosed {
		return fmt.Errorf("%w: closed -> %s", store.ErrInvalidTransition, next)
	}
	tk.Status = next
	s.tickets[id] = tk
	return nil
}

func TestTicketsCreateValidates(t *testing.T) {
	h := &TicketsHandler{Store: &stubTicketStore{}}
	c, _ := newJSONContext(t, http.MethodPost, "/api/tickets", `{"subject":"no company"}`)
	if code := httpCode(t, h.create(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestTicketsStatusTransition(t *testing.T) {
	st := &stubTicketStore{tickets: map[string]store.Ticket{
		"tick-1": {ID: "tick-1", Status: store.TicketStatusOpen},
	}}
	h := &TicketsHandler{Store: st}
	c, rec := newJSONContext(t, http.MethodPost, "/api/tickets/tick-1/status", `{"status":"in_progress"}`)
	c.SetParamNames("id")
	c.SetParamValues("tick-1")
	if err := h.updateStatus(c); err != nil {
		t.Fatalf("updateStatus: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if st.tickets["tick-1"].Status != store.TicketStatusInProgress {
		t.Fatal("status not updated")
	}
}

func TestTicketsStatusInvalidTransition(t *testing.T) {
	st := &stubTicketStore{tickets: map[string]store.Ticket{
		"tick-1": {ID: "tick-1", Status: store.TicketStatusClosed},
	}}
	h := &TicketsHandler{Store: st}
	c, _ := newJSONContext(t, http.MethodPost, "/api/tickets/tick-1/status", `{"status":"open"}`)
	c.SetParamNames("id")
	c.SetParamValues("tick-1")
	if code := httpCode(t, h.updateStatus(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestTicketsStatusUnknownValue(t *testing.T) {
	h := &TicketsHandler{Store: &stubTicketStore{}}
	c, _ := newJSONContext(t, http.MethodPost, "/api/tickets/tick-1/status", `{"status":"archived"}`)
	c.SetParamNames("id")
	c.SetParamValues("tick-1")
	if code := httpCode(t, h.updateStatus(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestTicketsStatusNotFound(t *testing.T) {
	h := &TicketsHandler{Store: &stubTicketStore{tickets: map[string]store.Ticket{}}}
	c, _ := newJSONContext(t, http.MethodPost, "/api/tickets/missing/status", `{"status":"closed"}`)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	if code := httpCode(t, h.updateStatus(c)); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

// ---- compare ----

type stubCompareHandlerStore struct {
	resources map[string]store.Resource
}

func (s *stubCompareHandlerStore) GetResource(ctx context.Context, id string) (store.Resource, error) {
	r, ok := s.resources[id]
	if !ok {
		return store.Resource{}, store.ErrNotFound
	}
	return r, nil
}

func (s *stubCompareHandlerStore) ListComparisons(ctx context.Context, companyID string, limit int) ([]store.Comparison, error) {
	return nil, nil
}

type stubCompareService struct {
	result   retrieval.CompareResult
	err      error
	gotRefs  []retrieval.ResourceRef
	gotQuery string
}

func (s *stubCompareService) Compare(ctx context.Context, companyID, query string, resources []retrieval.ResourceRef) (retrieval.CompareResult, error) {
	s.gotRefs = resources
	s.gotQuery = query
	return s.result, s.err
}

func (s *stubCompareService) FindRelevantContent(ctx context.Context, query string, topK int, minSimilarity float64) ([]retrieval.RelevantContent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func TestCompareHappyPath(t *testing.T) {
	st := &stubCompareHandlerStore{resources: map[string]store.Resource{
		"r1": {ID: "r1", CompanyID: "comp-1", Name: "Deck A"},
		"r2": {ID: "r2", CompanyID: "comp-1", Name: "Deck B"},
	}}
	svc := &stubCompareService{result: retrieval.CompareResult{Answer: "A grew faster."}}
	h := &CompareHandler{Store: st, Comparer: svc}

	c, rec := newJSONContext(t, http.MethodPost, "/api/compare",
		`{"query":"which grew faster?","resource_ids":["r1","r2"]}`)
	if err := h.compare(c); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.gotRefs) != 2 || svc.gotRefs[0].Name != "Deck A" {
		t.Fatalf("refs not resolved: %+v", svc.gotRefs)
	}
	var result retrieval.CompareResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Answer != "A grew faster." {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
}

func TestCompareValidates(t *testing.T) {
	h := &CompareHandler{Store: &stubCompareHandlerStore{}, Comparer: &stubCompareService{}}

	c, _ := newJSONContext(t, http.MethodPost, "/api/compare", `{"resource_ids":["r1"]}`)
	if code := httpCode(t, h.compare(c)); code != http.StatusBadRequest {
		t.Fatalf("missing query: expected 400, got %d", code)
	}

	c, _ = newJSONContext(t, http.MethodPost, "/api/compare", `{"query":"q"}`)
	if code := httpCode(t, h.compare(c)); code != http.StatusBadRequest {
		t.Fatalf("missing resources: expected 400, got %d", code)
	}
}

func TestCompareUnknownResource(t *testing.T) {
	h := &CompareHandler{
		Store:    &stubCompareHandlerStore{resources: map[string]store.Resource{}},
		Comparer: &stubCompareService{},
	}
	c, _ := newJSONContext(t, http.MethodPost, "/api/compare", `{"query":"q","resource_ids":["missing"]}`)
	if code := httpCode(t, h.compare(c)); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestCompareProviderFailure(t *testing.T) {
	st := &stubCompareHandlerStore{resources: map[string]store.Resource{
		"r1": {ID: "r1", CompanyID: "comp-1", Name: "Deck A"},
	}}
	svc := &stubCompareService{err: fmt.Errorf("embed query: %w", provider.ErrUnavailable)}
	h := &CompareHandler{Store: st, Comparer: svc}
	c, _ := newJSONContext(t, http.MethodPost, "/api/compare", `{"query":"q","resource_ids":["r1"]}`)
	err := h.compare(c)
	if code := httpCode(t, err); code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	var he *echo.HTTPError
	errors.As(err, &he)
	if msg := fmt.Sprint(he.Message); strings.Contains(msg, "embed") {
		t.Fatalf("provider detail leaked: %q", msg)
	}
}

func TestKnowledgeSearchEmptyResult(t *testing.T) {
	h := &CompareHandler{Store: &stubCompareHandlerStore{}, Comparer: &stubCompareService{}}
	c, rec := newJSONContext(t, http.MethodPost, "/api/knowledge/search", `{"query":"anything"}`)
	if err := h.knowledgeSearch(c); err != nil {
		t.Fatalf("knowledgeSearch: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %q", body)
	}
}

// ---- resources (url ingestion) ----

type stubIngester struct {
	id    string
	err   error
	input ingest.Input
}

func (s *stubIngester) Ingest(ctx context.Context, in ingest.Input) (string, error) {
	s.input = in
	return s.id, s.err
}

type stubFetcher struct {
	page ingest.Page
	err  error
}

func (s *stubFetcher) Fetch(ctx context.Context, pageURL string) (ingest.Page, error) {
	return s.page, s.err
}

func TestResourcesFromURL(t *testing.T) {
	ing := &stubIngester{id: "res-1"}
	h := &ResourcesHandler{
		Pipeline: ing,
		Fetcher: &stubFetcher{page: ingest.Page{
			URL: "https://example.com", Title: "Example", Text: "Fetched body text.",
		}},
	}
	c, rec := newJSONContext(t, http.MethodPost, "/api/resources/url",
		`{"company_id":"comp-1","url":"https://example.com"}`)
	if err := h.fromURL(c); err != nil {
		t.Fatalf("fromURL: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ing.input.Kind != store.ResourceKindURL {
		t.Fatalf("unexpected kind: %s", ing.input.Kind)
	}
	if ing.input.Name != "Example" {
		t.Fatalf("page title not used as name: %s", ing.input.Name)
	}
	if ing.input.FileURL != "https://example.com" {
		t.Fatalf("file url not set: %s", ing.input.FileURL)
	}
}

func TestResourcesFromURLValidates(t *testing.T) {
	h := &ResourcesHandler{Pipeline: &stubIngester{}, Fetcher: &stubFetcher{}}
	c, _ := newJSONContext(t, http.MethodPost, "/api/resources/url", `{"url":"https://example.com"}`)
	if code := httpCode(t, h.fromURL(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestResourcesFromURLFetchFailure(t *testing.T) {
	h := &ResourcesHandler{
		Pipeline: &stubIngester{},
		Fetcher:  &stubFetcher{err: errors.New("navigation timeout")},
	}
	c, _ := newJSONContext(t, http.MethodPost, "/api/resources/url",
		`{"company_id":"comp-1","url":"https://example.com"}`)
	if code := httpCode(t, h.fromURL(c)); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
}

func TestIngestHTTPErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ingest.ErrUnsupportedType, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: garbled", ingest.ErrExtract), http.StatusUnprocessableEntity},
		{fmt.Errorf("embed chunks: %w", provider.ErrUnavailable), http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if code := httpCode(t, ingestHTTPError(tc.err)); code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, code)
		}
	}
}
