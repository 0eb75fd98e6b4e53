package fakes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

// Backend is an httptest stand-in for the portal backend. It keeps users,
// tokens and secrets in memory and records every call per route
// ("POST /login", "GET /get-all-secrets", ...).
type Backend struct {
	*httptest.Server

	mu sync.Mutex

	Users   map[string]string // email -> password
	Tokens  map[string]string // token -> email
	Secrets map[string][]keyproxy.SecretRecord
	KMS     map[string]keyproxy.KMSConfig
	Signups []map[string]any

	// IssuedToken is returned by /login; empty means "token-<email>".
	IssuedToken string
	// Block, when non-nil, holds every request until it is closed or the
	// request is cancelled.
	Block chan struct{}
	// Override replaces the handler of a route.
	Override map[string]http.HandlerFunc
	Now      func() time.Time

	calls   map[string]int
	bodies  map[string][]byte
	headers map[string]http.Header
}

func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		Users:    map[string]string{},
		Tokens:   map[string]string{},
		Secrets:  map[string][]keyproxy.SecretRecord{},
		KMS:      map[string]keyproxy.KMSConfig{},
		Override: map[string]http.HandlerFunc{},
		Now:      time.Now,
		calls:    map[string]int{},
		bodies:   map[string][]byte{},
		headers:  map[string]http.Header{},
	}
	mux := http.NewServeMux()
	b.route(mux, "POST /login", b.login)
	b.route(mux, "POST /signup", b.signup)
	b.route(mux, "POST /create-secret", b.createSecret)
	b.route(mux, "GET /get-all-secrets", b.listSecrets)
	b.route(mux, "POST /get-secret", b.getSecret)
	b.route(mux, "GET /get-kms", b.getKMS)
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) AddUser(email, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Users[email] = password
}

func (b *Backend) AddSecret(email string, rec keyproxy.SecretRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Secrets[email] = append(b.Secrets[email], rec)
}

// IssueToken registers token as a valid bearer for email.
func (b *Backend) IssueToken(email, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Tokens[token] = email
}

func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// TotalCalls counts requests over all routes.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *Backend) LastBody(route string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[route]
}

func (b *Backend) LastHeader(route string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[route]
}

func (b *Backend) route(mux *http.ServeMux, pattern string, h func(http.ResponseWriter, *http.Request, []byte)) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.calls[pattern]++
		b.bodies[pattern] = body
		b.headers[pattern] = r.Header.Clone()
		block := b.Block
		override := b.Override[pattern]
		b.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		if override != nil {
			r.Body = io.NopCloser(strings.NewReader(string(body)))
			override(w, r)
			return
		}
		h(w, r, body)
	})
}

func (b *Backend) login(w http.ResponseWriter, _ *http.Request, body []byte) {
	var in keyproxy.LoginRequest
	if err := json.Unmarshal(body, &in); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if pw, ok := b.Users[in.Email]; !ok || pw != in.Password {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	tok := b.IssuedToken
	if tok == "" {
		tok = "token-" + in.Email
	}
	b.Tokens[tok] = in.Email
	WriteJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (b *Backend) signup(w http.ResponseWriter, _ *http.Request, body []byte) {
	var in map[string]any
	if err := json.Unmarshal(body, &in); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	email, _ := in["email"].(string)
	password, _ := in["password"].(string)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.Users[email]; exists {
		WriteJSON(w, http.StatusConflict, map[string]string{"error": "User already exists"})
		return
	}
	b.Users[email] = password
	b.Signups = append(b.Signups, in)
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (b *Backend) createSecret(w http.ResponseWriter, _ *http.Request, body []byte) {
	var in struct {
		Email       string `json:"email"`
		SecretName  string `json:"secret_name"`
		SecretValue string `json:"secret_value"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.SecretName == "" || in.SecretValue == "" {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Secret name and value are required"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Secrets[in.Email] = append(b.Secrets[in.Email], keyproxy.SecretRecord{
		SecretName:  in.SecretName,
		SecretValue: in.SecretValue,
		CreatedTime: b.Now().UTC().Format(time.RFC3339),
	})
	WriteJSON(w, http.StatusCreated, map[string]string{
		"message":       "Secret stored successfully",
		"kms_reference": "ref_" + in.SecretName,
	})
}

func (b *Backend) listSecrets(w http.ResponseWriter, r *http.Request, _ []byte) {
	email := r.URL.Query().Get("email")
	b.mu.Lock()
	recs := append([]keyproxy.SecretRecord{}, b.Secrets[email]...)
	b.mu.Unlock()
	WriteJSON(w, http.StatusOK, map[string]any{"secrets": recs})
}

func (b *Backend) getSecret(w http.ResponseWriter, r *http.Request, body []byte) {
	if _, ok := b.bearer(r); !ok {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	var in struct {
		Email      string `json:"email"`
		SecretName string `json:"secretName"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.Secrets[in.Email] {
		if rec.SecretName == in.SecretName {
			WriteJSON(w, http.StatusOK, map[string]string{"secret": rec.SecretValue})
			return
		}
	}
	WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Secret not found"})
}

func (b *Backend) getKMS(w http.ResponseWriter, r *http.Request, _ []byte) {
	email, ok := b.bearer(r)
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	b.mu.Lock()
	cfg, found := b.KMS[email]
	b.mu.Unlock()
	if !found {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "KMS configuration not found"})
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

func (b *Backend) bearer(r *http.Request) (string, bool) {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || tok == "" {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.Tokens[tok]
	return email, ok
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
