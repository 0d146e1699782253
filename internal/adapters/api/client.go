package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eduadmin/internal/adapters/http/perf"
	"eduadmin/internal/metrics"
)

// TokenSource returns the bearer credential for the request carried by ctx, or "".
type TokenSource func(ctx context.Context) string

// Client is the single HTTP gateway to the REST API. It is safe for concurrent use.
// INVARIANT: the base URL never changes after New
type Client struct {
	base      *url.URL
	http      *http.Client
	token     TokenSource
	collector *perf.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every call. Zero keeps the default of no client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithTokenSource injects the credential accessor used for the Authorization header.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCollector records every call in the perf ring buffer.
func WithCollector(pc *perf.Collector) Option {
	return func(c *Client) { c.collector = pc }
}

// New builds a client for baseURL.
// PRE: baseURL is absolute
// POST: returns a client that resolves endpoints against baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	c := &Client{base: base, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get issues a GET and decodes the JSON response into out (when non-nil).
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Send issues a request carrying body and decodes the JSON response into out (when non-nil).
func (c *Client) Send(ctx context.Context, method, path string, body Body, out any) error {
	return c.Do(ctx, method, path, nil, body, out)
}

// Do performs one API call. There is no retry.
// PRE: path is relative to the base URL
// POST: 2xx responses decode into out; other statuses return *Error; transport failures wrap ErrTransport
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body Body, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse api path %q: %w", path, err)
	}
	target := c.base.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	contentType := "application/json"
	if body != nil {
		reader, contentType, err = body.encode()
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build api request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if tok := c.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	callID := uuid.NewString()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(callID, method, path, 0, start)
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observe(callID, method, path, resp.StatusCode, start)
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", ErrTransport, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Method: method, Path: path, Status: resp.StatusCode, Body: data}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return Decode(data, out)
}

// Decode unmarshals an API payload keeping numbers as json.Number so ids round-trip verbatim.
func Decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

func (c *Client) observe(callID, method, path string, status int, start time.Time) {
	elapsed := time.Since(start)
	label := routeLabel(path)
	outcome := "ok"
	switch {
	case status == 0:
		outcome = "transport"
	case status >= 300:
		outcome = strconv.Itoa(status)
	}
	metrics.ObserveUpstream(label, method, outcome, elapsed)
	if c.collector != nil {
		c.collector.Record(perf.Entry{
			Kind:       perf.KindUpstream,
			Path:       method + " " + label,
			StatusCode: status,
			DurationMs: float64(elapsed.Microseconds()) / 1000.0,
			Timestamp:  start,
		})
	}
	zap.S().Debugw("upstream_call",
		"call_id", callID,
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", float64(elapsed.Microseconds())/1000.0,
	)
}

// IsCanceled reports whether err came from the caller abandoning the request.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
