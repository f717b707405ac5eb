// Package httpapi is the REST client shared by the indexer providers.
package httpapi

import (
	"errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Klingon-tech/ecashkit/internal/provider"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

// Client is a rate-limited JSON-over-HTTP client.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	query   url.Values // added to every request
}

// Option configures a Client.
type Option func(*Client)

// WithQuery adds a query parameter to every request, e.g. an API key.
func WithQuery(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.query.Set(key, value)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL. rps <= 0 disables rate limiting.
func New(baseURL string, timeout time.Duration, rps float64, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		query:   url.Values{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Unwrap returns the provider error class of the status.
func (e *StatusError) Unwrap() error { return e.kind }

// NewStatusError builds a classified StatusError, for APIs that report
// failures inside a 200 response.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message, kind: Classify(code)}
}

// IsNotFound reports whether err is a 404 answer. Classify treats 404 as a
// missing range; callers asking for anything other than a block range check
// IsNotFound first.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Classify maps an HTTP status code to a provider error class. 404, 410 and
// 416 mean the requested block range is not served.
func Classify(code int) error {
	switch {
	case code == http.StatusNotFound, code == http.StatusGone, code == http.StatusRequestedRangeNotSatisfiable:
		return provider.ErrRangeUnavailable
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return provider.ErrTransient
	default:
		return provider.ErrPermanent
	}
}

// Get requests path relative to the base URL and decodes the JSON body
// into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	q := url.Values{}
	for k, v := range c.query {
		q[k] = v
	}
	for k, v := range query {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: http request: %w", provider.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", provider.ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewStatusError(resp.StatusCode, strings.TrimSpace(string(truncate(data, 256))))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", provider.ErrPermanent, err)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
