// Package api implements the transport layer for the wildlife-monitoring
// backend: JSON encoding, bearer token attachment, a single transparent token
// refresh with one retry on 401, and normalization of the backend's
// heterogeneous error shapes into one error contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/wildwatch/wildwatch-go/internal/errors"
	"github.com/wildwatch/wildwatch-go/internal/kvstore"
	"github.com/wildwatch/wildwatch-go/internal/logging"
)

const (
	// DefaultTimeout is applied to requests whose context has no deadline.
	DefaultTimeout = 15 * time.Second

	defaultUserAgent = "WildWatch-Go"

	// Connection pool settings
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 30 * time.Second
	defaultDialKeepAlive       = 30 * time.Second
)

// Config holds configuration for creating the API client.
type Config struct {
	// BaseURL is the backend REST root, e.g. http://localhost:8000/api
	BaseURL string
	// Timeout is applied when the request context carries no deadline
	Timeout time.Duration
	// UserAgent is added to all requests
	UserAgent string
}

// Client is the API transport. Thread-safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    *TokenStore
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// New creates an API client persisting its token pair into the given store.
func New(cfg Config, store kvstore.KeyValueStore, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = logging.ForService("api")
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Transport: transport,
			// No client-level timeout, handled per-request with context
		},
		tokens:    NewTokenStore(store),
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Tokens exposes the token store for session-level checks (e.g. whether a
// persisted pair exists at startup).
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

// Close closes idle connections in the connection pool.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// multipartPayload carries a pre-encoded multipart body. The transport must
// not override its content type: the boundary lives in the header.
type multipartPayload struct {
	body        []byte
	contentType string
}

// requestSpec is an internal description of one API call.
type requestSpec struct {
	method   string
	endpoint string
	body     any  // nil, *multipartPayload, or a JSON-encodable value
	noAuth   bool // login/signup/refresh bypass the bearer-token path
	out      any  // decoded from the response JSON when non-nil
}

// do executes a request against the backend. On a 401 with a bearer token
// attached it refreshes the access token exactly once and retries the
// original request a single time; a failed refresh clears the token pair and
// fails with a session-expired error. No retry loops beyond that.
func (c *Client) do(ctx context.Context, spec *requestSpec) error {
	encoded, contentType, err := c.encodeBody(spec.body)
	if err != nil {
		return err
	}

	token := ""
	if !spec.noAuth {
		token = c.tokens.Access()
	}

	status, raw, err := c.send(ctx, spec, encoded, contentType, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && token != "" {
		newToken, refreshErr := c.refreshAccessToken(ctx)
		if refreshErr != nil {
			c.tokens.Clear()
			return errors.Newf("session expired, please login again").
				Component("api").
				Category(errors.CategoryAuth).
				Context("endpoint", spec.endpoint).
				Build()
		}
		status, raw, err = c.send(ctx, spec, encoded, contentType, newToken)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return decodeError(status, raw, spec.endpoint)
	}

	if spec.out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, spec.out); err != nil {
			return errors.New(err).
				Component("api").
				Category(errors.CategoryServer).
				Context("endpoint", spec.endpoint).
				Context("status", status).
				Build()
		}
	}

	return nil
}

// send issues one HTTP round trip with the encoded body and optional bearer
// token, returning the status code and the fully-read response body.
func (c *Client) send(ctx context.Context, spec *requestSpec, body []byte, contentType, token string) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, c.baseURL+spec.endpoint, reader)
	if err != nil {
		return 0, nil, errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("endpoint", spec.endpoint).
			Build()
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		category := errors.CategoryNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			category = errors.CategoryTimeout
		}
		return 0, nil, errors.New(fmt.Errorf("request to %s failed: %w", spec.endpoint, err)).
			Component("api").
			Category(category).
			Context("endpoint", spec.endpoint).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("endpoint", spec.endpoint).
			Build()
	}

	return resp.StatusCode, raw, nil
}

// encodeBody turns the spec body into wire bytes plus content type. Multipart
// payloads pass through untouched; everything else is JSON.
func (c *Client) encodeBody(body any) (data []byte, contentType string, err error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case *multipartPayload:
		return v.body, v.contentType, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", errors.New(err).
				Component("api").
				Category(errors.CategoryValidation).
				Build()
		}
		return data, "application/json", nil
	}
}

// refreshAccessToken exchanges the refresh token for a new access token and
// persists the result. Called at most once per originating request.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	refresh := c.tokens.Refresh()
	if refresh == "" {
		return "", errors.Newf("no refresh token available").
			Component("api").
			Category(errors.CategoryAuth).
			Build()
	}

	var pair TokenPair
	err := c.do(ctx, &requestSpec{
		method:   http.MethodPost,
		endpoint: "/token/refresh/",
		body:     map[string]string{"refresh": refresh},
		noAuth:   true,
		out:      &pair,
	})
	if err != nil {
		c.logger.Warn("token refresh failed", "error", err)
		return "", err
	}

	// A missing rotated refresh token keeps the current one
	if err := c.tokens.Set(pair.Access, pair.Refresh); err != nil {
		return "", err
	}

	c.logger.Debug("access token refreshed")
	return pair.Access, nil
}
