package connectors

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// HTTPError is a non-2xx vendor response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// client is the JSON-over-HTTP transport shared by the vendor connectors.
type client struct {
	baseURL    string
	httpClient *http.Client
	authorize  func(ctx context.Context, req *http.Request) error
	retry      RetryPolicy
	logger     *zap.Logger
}

// RetryPolicy bounds Connect retries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy is used unless WithRetry overrides it.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxRetries:      5,
}

// Option configures a vendor connector.
type Option func(*client)

// WithHTTPClient replaces the HTTP client (tests pass httptest clients).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithRetry sets the Connect retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(c *client) { c.retry = p }
}

// WithLogger attaches a logger for retry notifications.
func WithLogger(l *zap.Logger) Option {
	return func(c *client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInsecureTLS skips certificate verification. Firewalls commonly ship
// self-signed management certificates.
func WithInsecureTLS() Option {
	return func(c *client) {
		c.httpClient = &http.Client{
			Timeout: c.httpClient.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		}
	}
}

func newClient(baseURL string, opts []Option) *client {
	c := &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryPolicy,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil). Non-2xx responses are returned as *HTTPError.
func (c *client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, req, out)
}

// postForm sends a form-encoded POST, used for OAuth2 token exchange.
func (c *client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.roundTrip(req, out)
}

func (c *client) send(ctx context.Context, req *http.Request, out any) error {
	if c.authorize != nil {
		if err := c.authorize(ctx, req); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	return c.roundTrip(req, out)
}

func (c *client) roundTrip(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: truncate(data, 300)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w\nraw: %s", err, truncate(data, 300))
	}
	return nil
}

// connect runs probe with exponential backoff. Authentication failures
// (401/403) are not retried.
func (c *client) connect(ctx context.Context, vendor string, probe func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialInterval
	bo.MaxInterval = c.retry.MaxInterval
	bo.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithContext(bo, ctx)
	if c.retry.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, c.retry.MaxRetries)
	}

	err := backoff.RetryNotify(func() error {
		err := probe()
		var he *HTTPError
		if errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("connector connect failed, retrying",
			zap.String("vendor", vendor),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("%s: connect: %w", vendor, err)
	}
	return nil
}

func truncate(b []byte, max int) string {
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
