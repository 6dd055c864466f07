// Package service implements the request/response transformation between the
// edge endpoint and the fixed upstream origin.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"edge-origin-proxy/internal/config"
	"edge-origin-proxy/internal/metrics"
	"edge-origin-proxy/internal/model"
)

// Upstream sends one request to the origin. Implementations return a decoded
// body that the caller must close.
type Upstream interface {
	Send(ctx context.Context, out *model.OutboundRequest) (*model.UpstreamResponse, error)
}

// ProxyService turns one inbound request into one outbound response.
// It holds no per-request state and is safe for concurrent use.
type ProxyService struct {
	upstream Upstream
	logger   *slog.Logger
	metrics  *metrics.Metrics

	origin     *url.URL
	baseURL    string // origin base without trailing slash
	originRoot string // scheme://host, the value sent as Origin
	rewriter   *linkRewriter
}

// NewProxyService creates a ProxyService for the configured origin.
// The metrics parameter is optional; pass nil to disable proxy metrics.
func NewProxyService(up Upstream, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q must be absolute", cfg.Upstream.BaseURL)
	}

	base := *u
	base.Path = trimTrailingSlash(u.Path)
	base.RawPath = ""

	return &ProxyService{
		upstream:   up,
		logger:     logger.With("component", "proxy_service"),
		metrics:    m,
		origin:     &base,
		baseURL:    base.String(),
		originRoot: u.Scheme + "://" + u.Host,
		rewriter:   newLinkRewriter(&base),
	}, nil
}

// Forward proxies in to the origin and returns the transformed response.
// The caller is responsible for closing the response body.
//
// An OPTIONS request is answered 204 once the origin has responded. A 404 for
// the root path is retried once against the origin's own root document; if the
// retry does not succeed the original 404 is returned unchanged.
func (s *ProxyService) Forward(ctx context.Context, in *model.InboundRequest) (*model.OutboundResponse, error) {
	s.logger.Info("proxy request", "method", in.Method, "path", in.PathQuery)

	out := s.BuildRequest(in)
	s.logger.Debug("upstream target", "url", out.URL)

	resp, err := s.upstream.Send(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	s.logger.Info("upstream response",
		"status", resp.StatusCode,
		"status_text", resp.StatusText,
	)

	if in.Method == http.MethodOptions {
		return s.preflight(in, resp), nil
	}

	if resp.StatusCode == http.StatusNotFound && in.Path == "/" {
		if fb := s.rootFallback(ctx, in, out); fb != nil {
			drain(resp.Body)
			return fb, nil
		}
	}

	result, err := s.dispatch(in, resp)
	if err != nil {
		return nil, fmt.Errorf("dispatch response: %w", err)
	}
	return result, nil
}

// rootFallback retries the origin root with the same request options. It
// returns nil when the retry fails in any way, leaving the original 404 to be
// surfaced.
func (s *ProxyService) rootFallback(ctx context.Context, in *model.InboundRequest, out *model.OutboundRequest) *model.OutboundResponse {
	retry := *out
	retry.URL = s.RootURL()
	retry.Header = out.Header.Clone()

	s.logger.Info("root document returned 404; retrying origin root", "url", retry.URL)

	resp, err := s.upstream.Send(ctx, &retry)
	if err != nil {
		s.logger.Warn("root fallback failed", "err", err)
		s.countFallback("failed")
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		s.logger.Warn("root fallback failed", "status", resp.StatusCode)
		s.countFallback("failed")
		return nil
	}

	result, err := s.renderRootDocument(in, resp)
	if err != nil {
		s.logger.Warn("root fallback failed", "err", err)
		s.countFallback("failed")
		return nil
	}

	s.logger.Info("root fallback recovered root document", "status", resp.StatusCode)
	s.countFallback("recovered")
	return result
}

func (s *ProxyService) countFallback(outcome string) {
	if s.metrics != nil {
		s.metrics.RootFallbacks.WithLabelValues(outcome).Inc()
	}
}

func trimTrailingSlash(p string) string {
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
