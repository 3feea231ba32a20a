package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultTimeout bounds a single relay call, including redirects.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodySize bounds how much of the upstream answer is read.
	DefaultMaxBodySize = 1 << 20

	userAgent = "Pushlog-Relay/1.0"
)

// Result is a successful relay.
type Result struct {
	Status int
	// Upstream is the parsed JSON body, or the raw text if it was not JSON.
	Upstream any
}

// Client forwards payloads to a single webhook.
type Client struct {
	url         string
	method      string
	timeout     time.Duration
	requireJSON bool
	maxBodySize int64
	httpClient  *http.Client
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMethod selects GET (query parameters) or POST (JSON body).
func WithMethod(method string) Option {
	return func(c *Client) {
		if method != "" {
			c.method = method
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequireJSON makes a 2xx answer with a non-JSON body fail with
// KindInvalidResponse. It is off by default so that webhooks answering with
// plain text keep working; turn it on to treat an absent JSON body as the
// upstream failure it usually is.
func WithRequireJSON(require bool) Option {
	return func(c *Client) { c.requireJSON = require }
}

// WithMaxBodySize overrides DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithClock overrides the source of the cache-busting timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a Client for webhookURL.
func New(webhookURL string, opts ...Option) *Client {
	c := &Client{
		url:         webhookURL,
		method:      http.MethodGet,
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
		httpClient:  &http.Client{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Timeout = c.timeout
	return c
}

// Forward sends p upstream once and classifies the answer. Failures are
// returned as *Error.
func (c *Client) Forward(ctx context.Context, p Payload) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, p)
	if err != nil {
		return nil, &Error{Kind: KindFetchFailed, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: transportKind(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &Error{Kind: transportKind(err), Status: resp.StatusCode, Err: err}
	}

	upstream, isJSON := parseBody(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindUpstreamError, Status: resp.StatusCode, Upstream: upstream}
	}
	if obj, ok := upstream.(map[string]any); ok {
		if v, has := obj["ok"]; has && v != true {
			return nil, &Error{Kind: KindNotOK, Status: resp.StatusCode, Upstream: upstream}
		}
	}
	if !isJSON && c.requireJSON {
		return nil, &Error{Kind: KindInvalidResponse, Status: resp.StatusCode, Upstream: upstream}
	}
	return &Result{Status: resp.StatusCode, Upstream: upstream}, nil
}

func (c *Client) newRequest(ctx context.Context, p Payload) (*http.Request, error) {
	var req *http.Request
	switch c.method {
	case http.MethodGet:
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		q := r.URL.Query()
		for k, vs := range p.Query() {
			q[k] = vs
		}
		q.Set("v", strconv.FormatInt(c.now().UnixMilli(), 10))
		r.URL.RawQuery = q.Encode()
		req = r
	case http.MethodPost:
		body, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		req = r
	default:
		return nil, fmt.Errorf("unsupported relay method %q", c.method)
	}
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.1")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// parseBody decodes JSON when it can and falls back to the raw text.
func parseBody(body []byte) (any, bool) {
	if json.Valid(body) {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v, true
		}
	}
	return string(body), false
}

func transportKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindFetchFailed
}
