// Package handler provides the echo handlers that expose the proxy.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"edge-origin-proxy/internal/model"
	"edge-origin-proxy/internal/service"
)

// ProxyHandler forwards every non-reserved request to the upstream origin.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	now     func() time.Time
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		now:     time.Now,
	}
}

// Handle proxies the request to the origin and streams the transformed
// response back. Any failure is answered with the diagnostic page.
func (h *ProxyHandler) Handle(c echo.Context) error {
	in := inboundFrom(c)

	resp, err := h.service.Forward(c.Request().Context(), in)
	// The builder restores the consumed request body on in; hand it back to
	// the echo request so later handlers can still read it.
	if in.Body != nil {
		c.Request().Body = in.Body
	}
	if err != nil {
		return h.mapError(c, in, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.Set(model.ContextKeyCategory, resp.Category)

	copyResponseHeaders(c.Response().Header(), resp.Header)
	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already on the wire, so a copy failure can only be
	// logged; the caller sees a truncated body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", in.Path,
			"category", resp.Category,
		)
	}

	return nil
}

// ErrorHandler renders the diagnostic page for server-side failures that
// reach echo's central error handler, such as recovered panics. Client
// errors (4xx) are passed to fallback.
func (h *ProxyHandler) ErrorHandler(fallback echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code < 500 {
			fallback(err, c)
			return
		}
		if werr := h.mapError(c, inboundFrom(c), err); werr != nil {
			h.logger.Error("writing diagnostic page", "err", werr)
		}
	}
}

func (h *ProxyHandler) mapError(c echo.Context, in *model.InboundRequest, err error) error {
	target := h.service.TargetURL(in.PathQuery)
	h.logger.Error("proxy error",
		"err", err,
		"kind", errorKind(err),
		"method", in.Method,
		"path", in.Path,
		"target", target,
	)

	return writeDiagnostic(c, diagnostic{
		Message:   err.Error(),
		Path:      in.PathQuery,
		TargetURL: target,
		Method:    in.Method,
		Time:      h.now(),
	})
}

// copyResponseHeaders writes the proxied headers over dst. An upstream value
// replaces one set earlier by middleware, except X-Request-Id, which stays
// the proxy's own.
func copyResponseHeaders(dst, src http.Header) {
	for key, vals := range src {
		if http.CanonicalHeaderKey(key) == echo.HeaderXRequestID && dst.Get(echo.HeaderXRequestID) != "" {
			continue
		}
		dst.Del(key)
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
}

// errorKind buckets a proxy failure for logging.
func errorKind(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &urlErr):
		return "connection"
	default:
		return "other"
	}
}

// inboundFrom captures the parts of the echo request the proxy needs.
func inboundFrom(c echo.Context) *model.InboundRequest {
	req := c.Request()
	return &model.InboundRequest{
		Method:     req.Method,
		PathQuery:  req.URL.RequestURI(),
		Path:       req.URL.Path,
		Header:     req.Header,
		Body:       req.Body,
		EdgeOrigin: c.Scheme() + "://" + req.Host,
	}
}
