// Package httpclient is the HTTP capability the stores talk to the API
// through. It adds the bearer token, a request id, JSON encoding, and maps
// failures to *apierr.Error.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/apierr"
	"expensetracker/internal/log"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Requester performs one API call. body is JSON-encoded when non-nil and
// out, when non-nil, receives the decoded response. Failures are
// *apierr.Error.
type Requester interface {
	Do(ctx context.Context, method, path string, body any, params url.Values, out any) error
}

// TokenSource supplies the bearer token. Refresh is called once after a 401
// and returns the replacement token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Client implements Requester over net/http.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	tokens   TokenSource
	logger   *log.Logger
	noRetry  []string
	newReqID func() string
	metrics  metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithTokenSource enables bearer authentication.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentHTTP) }
}

// WithNoRefreshPaths lists path prefixes whose 401 is returned as-is
// instead of triggering a token refresh.
func WithNoRefreshPaths(prefixes ...string) Option {
	return func(c *Client) { c.noRetry = append(c.noRetry, prefixes...) }
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:  u,
		http:     newHTTPClientWithPooling(),
		logger:   log.Discard(),
		noRetry:  []string{"/api/auth/"},
		newReqID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling,
// keep-alive and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Do implements Requester. The request id is shared by the retry after a
// 401 and recorded on the returned *apierr.Error.
func (c *Client) Do(ctx context.Context, method, path string, body any, params url.Values, out any) error {
	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = c.newReqID()
	}
	err := c.do(ctx, reqID, method, path, body, params, out)
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && apiErr != nil && apiErr.RequestID == "" {
		apiErr.RequestID = reqID
	}
	return err
}

func (c *Client) do(ctx context.Context, reqID, method, path string, body any, params url.Values, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apierr.Transport(method, path, fmt.Errorf("encode request: %w", err))
		}
		payload = b
	}

	token, err := c.token(ctx, false)
	if err != nil {
		return apierr.Transport(method, path, fmt.Errorf("token: %w", err))
	}

	status, respBody, err := c.send(ctx, reqID, method, path, params, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && c.tokens != nil && c.refreshable(path) {
		c.logger.InfoContext(ctx, "Refreshing token after 401", log.FieldMethod, method, log.FieldPath, path)
		token, err = c.token(ctx, true)
		if err != nil {
			return apierr.FromResponse(method, path, status, respBody)
		}
		status, respBody, err = c.send(ctx, reqID, method, path, params, payload, token)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		apiErr := apierr.FromResponse(method, path, status, respBody)
		c.logger.WarnContext(ctx, "API request failed",
			log.FieldMethod, method,
			log.FieldPath, path,
			log.FieldStatusCode, status,
			log.FieldRequestID, reqID,
			log.FieldErrorKind, apiErr.Kind.String(),
			"trace_id", apiErr.TraceID())
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apierr.Transport(method, path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) send(ctx context.Context, reqID, method, path string, params url.Values, payload []byte, token string) (int, []byte, error) {
	target := c.resolve(path, params)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, apierr.Transport(method, path, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(time.Since(start), true)
		c.logger.WarnContext(ctx, "API request transport failure",
			log.NewFields().WithHTTPRequest(method, path, reqID).WithError(err).ToSlice()...)
		return 0, nil, apierr.Transport(method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.observe(time.Since(start), true)
		return 0, nil, apierr.Transport(method, path, fmt.Errorf("read response: %w", err))
	}
	c.metrics.observe(time.Since(start), resp.StatusCode < 200 || resp.StatusCode > 299)

	c.logger.DebugContext(ctx, "API request",
		log.NewFields().
			WithHTTPRequest(method, path, reqID).
			WithHTTPResponse(resp.StatusCode, time.Since(start).Milliseconds()).
			ToSlice()...)

	return resp.StatusCode, respBody, nil
}

func (c *Client) resolve(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

func (c *Client) token(ctx context.Context, refresh bool) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	if refresh {
		return c.tokens.Refresh(ctx)
	}
	return c.tokens.Token(ctx)
}

func (c *Client) refreshable(path string) bool {
	for _, prefix := range c.noRetry {
		if strings.HasPrefix(strings.ToLower(path), strings.ToLower(prefix)) {
			return false
		}
	}
	return true
}

// StaticToken is a TokenSource with a fixed token that cannot be refreshed.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

func (s StaticToken) Refresh(context.Context) (string, error) {
	return "", errors.New("static token cannot be refreshed")
}
