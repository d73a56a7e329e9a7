package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/clearscope-labs/clearscope/internal/store"
)

type stubUserStore struct {
	users map[string]string // email -> hash
}

func (s *stubUserStore) CreateUser(ctx context.Context, email, hash string) error {
	if _, ok := s.users[email]; ok {
		return errDuplicateEmail
	}
	s.users[email] = hash
	return nil
}

func (s *stubUserStore) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	hash, ok := s.users[email]
	if !ok {
		return "", "", store.ErrNotFound
	}
	return "user-1", hash, nil
}

var errDuplicateEmail = &duplicateError{}

type duplicateError struct{}

func (*duplicateError) Error() string { return "duplicate email" }

func TestSignupValidates(t *testing.T) {
	h := &AuthHandler{Store: &stubUserStore{users: map[string]string{}}, Secret: []byte("s")}
	c, _ := newJSONContext(t, http.MethodPost, "/api/auth/signup", `{"email":"a@b.c","password":"short"}`)
	if code := httpCode(t, h.signup(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestSignupAndLogin(t *testing.T) {
	st := &stubUserStore{users: map[string]string{}}
	h := &AuthHandler{Store: st, Secret: []byte("test-secret")}

	c, rec := newJSONContext(t, http.MethodPost, "/api/auth/signup", `{"email":"analyst@firm.com","password":"longenough"}`)
	if err := h.signup(c); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if _, ok := st.users["analyst@firm.com"]; !ok {
		t.Fatal("user not stored")
	}

	c, rec = newJSONContext(t, http.MethodPost, "/api/auth/login", `{"email":"analyst@firm.com","password":"longenough"}`)
	if err := h.login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	cookies := rec.Result().Cookies()
	var found bool
	for _, ck := range cookies {
		if ck.Name == "auth" && ck.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("auth cookie not set")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("rightpassword"), bcrypt.DefaultCost)
	st := &stubUserStore{users: map[string]string{"analyst@firm.com": string(hash)}}
	h := &AuthHandler{Store: st, Secret: []byte("test-secret")}

	c, _ := newJSONContext(t, http.MethodPost, "/api/auth/login", `{"email":"analyst@firm.com","password":"wrongpassword"}`)
	if code := httpCode(t, h.login(c)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	h := &AuthHandler{Store: &stubUserStore{users: map[string]string{}}, Secret: []byte("s")}
	c, _ := newJSONContext(t, http.MethodPost, "/api/auth/login", `{"email":"ghost@firm.com","password":"longenough"}`)
	if code := httpCode(t, h.login(c)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}
