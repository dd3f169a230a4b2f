// Package gotrue implements access.IdentityClient over a GoTrue-compatible
// identity backend (the flavor Supabase ships). It owns credential
// persistence across restarts through a pluggable Storage.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"

	access "github.com/zonetox/Beauty-sub001"
)

// Config holds the backend coordinates.
type Config struct {
	// BaseURL is the auth endpoint root, e.g. https://xyz.supabase.co/auth/v1
	BaseURL string
	// APIKey is the public (anon) key sent with every request.
	APIKey string
	// JWTSecret verifies HS256 access tokens. Leave empty when JWKSURL is
	// set.
	JWTSecret string
	// JWKSURL enables asymmetric token verification via a remote key set.
	JWKSURL string
	// RequestTimeout bounds each HTTP call. Defaults to 10s.
	RequestTimeout time.Duration
}

// Client talks to the identity backend. It is stateless apart from the
// Storage used to persist the refresh credential.
type Client struct {
	cfg       Config
	http      *http.Client
	storage   Storage
	validator TokenValidator
	logger    access.Logger
}

var _ access.IdentityClient = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithStorage overrides where the refresh credential is persisted.
func WithStorage(s Storage) Option {
	return func(c *Client) {
		if s != nil {
			c.storage = s
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger access.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTokenValidator overrides how access tokens are verified.
func WithTokenValidator(v TokenValidator) Option {
	return func(c *Client) {
		if v != nil {
			c.validator = v
		}
	}
}

// New returns a Client for the given backend.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, goerrors.New("gotrue: base url is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		storage: NewMemoryStorage(),
		logger:  nopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.validator == nil {
		v, err := newDefaultValidator(cfg)
		if err != nil {
			return nil, err
		}
		c.validator = v
	}

	return c, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

// SignIn exchanges credentials via the password grant.
func (c *Client) SignIn(ctx context.Context, email, password string) (*access.Session, error) {
	body := map[string]string{"email": email, "password": password}

	res, status, err := c.post(ctx, "/token?grant_type=password", body, "")
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		// deliberately indistinct: never reveal which credential was wrong
		return nil, access.ErrInvalidCredentials
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("sign in", status, res)
	}

	session, err := c.sessionFromResponse(res)
	if err != nil {
		return nil, err
	}

	if err := c.persist(session); err != nil {
		c.logger.Warn("gotrue: failed to persist session: %v", err)
	}

	return session, nil
}

// Refresh rotates the refresh credential. A rejected credential maps to
// access.ErrRefreshFailed so the store can settle as signed out.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*access.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	res, status, err := c.post(ctx, "/token?grant_type=refresh_token", body, "")
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusNotFound {
		return nil, access.ErrRefreshFailed
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("refresh", status, res)
	}

	session, err := c.sessionFromResponse(res)
	if err != nil {
		return nil, err
	}

	if err := c.persist(session); err != nil {
		c.logger.Warn("gotrue: failed to persist session: %v", err)
	}

	return session, nil
}

// RestoreSession recovers the persisted refresh credential and exchanges it
// for a fresh session. No credential means "was never signed in".
func (c *Client) RestoreSession(ctx context.Context) (*access.Session, error) {
	persisted, err := c.storage.Load()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: failed to read persisted session")
	}
	if persisted == nil {
		return nil, nil
	}

	var stored storedSession
	if err := json.Unmarshal(persisted, &stored); err != nil || stored.RefreshToken == "" {
		// corrupt persistence is indistinguishable from no session
		_ = c.storage.Clear()
		return nil, nil
	}

	session, err := c.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		if errors.Is(err, access.ErrRefreshFailed) {
			_ = c.storage.Clear()
		}
		return nil, err
	}

	return session, nil
}

// SignOut revokes the refresh credential remotely and drops the persisted
// copy. Callers treat the remote part as best effort.
func (c *Client) SignOut(ctx context.Context, refreshToken string) error {
	if err := c.storage.Clear(); err != nil {
		c.logger.Warn("gotrue: failed to clear persisted session: %v", err)
	}

	_, status, err := c.post(ctx, "/logout", nil, refreshToken)
	if err != nil {
		return err
	}
	if status >= http.StatusInternalServerError {
		return goerrors.New("gotrue: sign out failed upstream", goerrors.CategoryOperation).
			WithMetadata(map[string]any{"status": status})
	}
	return nil
}

type storedSession struct {
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) persist(session *access.Session) error {
	raw, err := json.Marshal(storedSession{RefreshToken: session.RefreshToken})
	if err != nil {
		return err
	}
	return c.storage.Save(raw)
}

func (c *Client) sessionFromResponse(raw []byte) (*access.Session, error) {
	var res tokenResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: malformed token response")
	}

	identity, err := c.validator.Validate(res.AccessToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "gotrue: access token failed verification").
			WithCode(goerrors.CodeUnauthorized)
	}

	return &access.Session{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(res.ExpiresIn) * time.Second),
		Identity:     *identity,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, bearer string) ([]byte, int, error) {
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, payload)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: request failed")
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, resp.StatusCode, goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: failed to read response")
	}

	return buf.Bytes(), resp.StatusCode, nil
}

func (c *Client) unexpectedStatus(op string, status int, raw []byte) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	msg := body.ErrorDescription
	if msg == "" {
		msg = body.Message
	}

	return goerrors.New(fmt.Sprintf("gotrue: %s failed", op), goerrors.CategoryOperation).
		WithMetadata(map[string]any{
			"status":  status,
			"details": msg,
		})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
