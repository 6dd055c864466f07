// Package client provides the outbound HTTP client for the fixed upstream origin.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"edge-origin-proxy/internal/config"
	"edge-origin-proxy/internal/metrics"
	"edge-origin-proxy/internal/model"
)

// TracerName identifies spans emitted by the origin client.
const TracerName = "edge-origin-proxy/client"

// OriginClient sends requests to the upstream origin.
type OriginClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures an OriginClient.
type Option func(*OriginClient)

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *OriginClient) {
		c.tracer = tp.Tracer(TracerName)
	}
}

// WithTransport replaces the pooled transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *OriginClient) {
		c.httpClient.Transport = rt
	}
}

// NewOriginClient creates an OriginClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// Redirects are followed by the client, so the caller never observes an
// upstream 3xx. Compression is not negotiated by the transport: the caller's
// Accept-Encoding is forwarded as-is and the body is decoded in Send.
func NewOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *OriginClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &OriginClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "origin_client"),
		metrics: m,
		tracer:  otel.GetTracerProvider().Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send executes out against the origin and returns the response with a
// decoded body. The caller is responsible for closing the response body.
// The provided context controls the lifetime of the upstream request.
func (c *OriginClient) Send(ctx context.Context, out *model.OutboundRequest) (*model.UpstreamResponse, error) {
	ctx, span := c.tracer.Start(ctx, "upstream "+out.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", out.Method),
			attribute.String("http.url", out.URL),
			attribute.Bool("http.request.has_body", out.HasBody),
		),
	)
	defer span.End()

	var body io.Reader
	if out.HasBody {
		body = bytes.NewReader(out.Body)
	}
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = out.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if out.Host != "" {
		req.Host = out.Host
	}

	c.logger.Debug("upstream request",
		"method", out.Method,
		"url", out.URL,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(out.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}
	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       decodeBody(resp.Header.Get("Content-Encoding"), resp.Body),
	}, nil
}

// statusText returns the reason phrase the origin sent, falling back to the
// canonical text for the code.
func statusText(resp *http.Response) string {
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
