// Package httpclient is the outbound adapter used for every identity provider
// call. It performs exactly one round-trip per Do, never retries, and returns
// the raw status, headers and (size-limited) body.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds a single provider call when no timeout is configured
	DefaultTimeout = 10 * time.Second

	// MaxBodySize caps how much of a provider response is read into memory
	MaxBodySize = 1 << 20

	tracerName = "github.com/dgellow/customer-auth/internal/httpclient"
)

// Request is one outbound call.
type Request struct {
	// Operation names the call for logs, metrics and spans (e.g. "token_exchange").
	Operation string
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
}

// Response is the provider's answer, fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client performs provider requests.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records every call on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and reads the whole response. A non-nil error means no
// response was received (connection failure, timeout, cancelled context).
// Non-2xx statuses are not errors at this layer.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "provider."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("customer_auth.operation", req.Operation),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, fmt.Errorf("building %s request: %w", req.Operation, err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveProviderRequest(req.Operation, metrics.OutcomeTransport, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		log.LogDebugWithFields("httpclient", "Provider request failed", map[string]any{
			"operation": req.Operation,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("%s request: %w", req.Operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		c.metrics.ObserveProviderRequest(req.Operation, metrics.OutcomeTransport, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "read error")
		return nil, fmt.Errorf("reading %s response: %w", req.Operation, err)
	}

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	out := &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}
	if out.OK() {
		c.metrics.ObserveProviderRequest(req.Operation, metrics.OutcomeSuccess, elapsed)
	} else {
		c.metrics.ObserveProviderRequest(req.Operation, metrics.OutcomeHTTPError, elapsed)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	log.LogTraceWithFields("httpclient", "Provider request completed", map[string]any{
		"operation": req.Operation,
		"status":    resp.StatusCode,
		"duration":  elapsed.String(),
	})

	return out, nil
}
