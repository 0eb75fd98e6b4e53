package keyproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// DefaultBaseURL is where the portal backend listens unless configured.
const DefaultBaseURL = "http://127.0.0.1:5000"

const (
	headerRequestID = "X-Request-ID"
	maxResponseBody = 1 << 20
)

// HTTPDoer is the part of *http.Client the Client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the current session token, if any.
type TokenSource interface {
	Token() (string, bool)
}

// Client talks to the portal backend: login, signup and the secret exchange
// calls. Each call is a single attempt; nothing is retried or cached.
//
// Errors are one of *ValidationError (nothing was sent), *TransportError (no
// usable response) or *RemoteError (non-2xx answer). Client is safe for
// concurrent use if the injected HTTPDoer is.
type Client struct {
	baseURL string
	http    HTTPDoer
	tokens  TokenSource
	log     *slog.Logger
	newID   func() string
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The default applies no timeout.
func WithHTTPClient(h HTTPDoer) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTokenSource attaches the session token as a bearer to create and list
// calls when one is present.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a Client for baseURL, falling back to DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
		log:     slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges email and password for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	if err := c.call(ctx, http.MethodPost, "/login", nil, LoginRequest{Email: email, Password: password}, "", &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &TransportError{Op: "POST /login", Err: ErrMissingToken}
	}
	return out.Token, nil
}

// Signup validates req locally and registers the account. It does not log
// the new account in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, "/signup", nil, req, "", nil)
}

// CreateSecret stores a named secret for the account.
func (c *Client) CreateSecret(ctx context.Context, email, name, value string) error {
	if name == "" || value == "" {
		return &ValidationError{Message: "Secret name and value are required"}
	}
	err := c.call(ctx, http.MethodPost, "/create-secret", nil, createSecretRequest{
		Email:       email,
		SecretName:  name,
		SecretValue: value,
	}, c.sessionToken(), nil)
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return &RemoteError{Op: rerr.Op, StatusCode: rerr.StatusCode, Message: "Failed to create secret"}
	}
	return err
}

// ListSecrets returns the account's secrets in display form.
func (c *Client) ListSecrets(ctx context.Context, email string) ([]SecretView, error) {
	var out listSecretsResponse
	q := url.Values{"email": {email}}
	if err := c.call(ctx, http.MethodGet, "/get-all-secrets", q, nil, c.sessionToken(), &out); err != nil {
		return nil, err
	}
	return toSecretViews(out.Secrets), nil
}

// FetchSecret retrieves one secret value with the caller's bearer token and
// strips it down to [A-Za-z0-9_-]. Every failure is logged and returned
// wrapped in ErrFetchSecret; a response without a secret also matches
// ErrSecretNotFound.
func (c *Client) FetchSecret(ctx context.Context, email, name, token string) (string, error) {
	var out fetchSecretResponse
	err := ErrNotAuthenticated
	if token != "" {
		err = c.call(ctx, http.MethodPost, "/get-secret", nil, fetchSecretRequest{Email: email, SecretName: name}, token, &out)
	}
	if err == nil && (out.Secret == nil || *out.Secret == "") {
		err = ErrSecretNotFound
	}
	if err != nil {
		c.log.ErrorContext(ctx, "error fetching secret", "secret_name", name, "error", err)
		return "", fmt.Errorf("%w: %w", ErrFetchSecret, err)
	}
	return SanitizeSecret(*out.Secret), nil
}

// GetKMS returns the KMS configuration stored for the token's account.
func (c *Client) GetKMS(ctx context.Context, token string) (*KMSConfig, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	var out KMSConfig
	if err := c.call(ctx, http.MethodGet, "/get-kms", nil, nil, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) sessionToken() string {
	if c.tokens == nil {
		return ""
	}
	tok, ok := c.tokens.Token()
	if !ok {
		return ""
	}
	return tok
}

// call performs one JSON request. out may be nil when the body is ignored.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, in any, bearer string, out any) error {
	op := method + " " + path
	reqID := c.newID()
	log := c.log.With("op", op, "request_id", reqID)

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, reqID)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	log.DebugContext(ctx, "sending request")
	resp, err := c.http.Do(req)
	if err != nil {
		log.WarnContext(ctx, "request failed", "error", err)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		log.WarnContext(ctx, "reading response failed", "error", err)
		return &TransportError{Op: op, Err: err}
	}
	log.DebugContext(ctx, "response received", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &TransportError{Op: op, Err: errors.New("empty response body")}
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.WarnContext(ctx, "malformed response", "error", err)
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
