package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/multierr"
	"golang.org/x/net/http/httpguts"

	"edge-origin-proxy/internal/content"
	"edge-origin-proxy/internal/model"
)

// CORS values injected into every proxied response.
const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Requested-With, New-API-User"
)

// framingHeaders describe the upstream message framing. The server recomputes
// them for the (possibly decoded and rewritten) body it actually sends.
var framingHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Keep-Alive":        true,
	"Trailer":           true,
}

var (
	errInvalidHeaderName  = errors.New("invalid header name")
	errInvalidHeaderValue = errors.New("invalid header value")
)

// htmlPreviewLen bounds the HTML prefix written to the debug log.
const htmlPreviewLen = 100

// reconstructHeaders rebuilds the caller-facing header set from the upstream
// one. Each header is copied independently: a rejected header is skipped and
// reported, never failing the response. Set-Cookie values are re-appended as
// separate fields and Content-Encoding is always dropped because the body has
// already been decoded.
func (s *ProxyService) reconstructHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	var cookies []string
	var skipped error

	keys := make([]string, 0, len(src))
	for key := range src {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		canon := http.CanonicalHeaderKey(key)
		switch {
		case canon == "Set-Cookie":
			cookies = append(cookies, src[key]...)
			continue
		case canon == "Content-Encoding":
			s.logger.Debug("dropping content-encoding", "value", strings.Join(src[key], ", "))
			continue
		case framingHeaders[canon]:
			continue
		}
		for _, v := range src[key] {
			skipped = multierr.Append(skipped, copyHeader(dst, key, v))
		}
	}

	if len(cookies) > 0 {
		s.logger.Debug("returning cookies", "count", len(cookies))
		for _, c := range cookies {
			dst.Add("Set-Cookie", c)
		}
	}

	if skipped != nil {
		errs := multierr.Errors(skipped)
		for _, err := range errs {
			s.logger.Warn("skipping response header", "err", err)
		}
		if s.metrics != nil {
			s.metrics.HeadersSkipped.Add(float64(len(errs)))
		}
	}

	return dst
}

// copyHeader adds key: value to dst unless the output transport would reject it.
func copyHeader(dst http.Header, key, value string) error {
	if !httpguts.ValidHeaderFieldName(key) {
		return fmt.Errorf("%w: %q", errInvalidHeaderName, key)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("%w for %q", errInvalidHeaderValue, key)
	}
	dst.Add(key, value)
	return nil
}

// applyCORS injects the credentialed CORS headers, reflecting the caller's
// own edge origin rather than a wildcard.
func applyCORS(h http.Header, edgeOrigin string) {
	h.Set("Access-Control-Allow-Origin", edgeOrigin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
}

// preflight answers an OPTIONS request: 204, no body, reconstructed headers
// only. The upstream body is drained and discarded.
func (s *ProxyService) preflight(in *model.InboundRequest, resp *model.UpstreamResponse) *model.OutboundResponse {
	drain(resp.Body)

	header := s.reconstructHeaders(resp.Header)
	header.Del("Content-Type")
	applyCORS(header, in.EdgeOrigin)

	return &model.OutboundResponse{
		StatusCode: http.StatusNoContent,
		StatusText: http.StatusText(http.StatusNoContent),
		Header:     header,
		Body:       http.NoBody,
		Category:   "preflight",
	}
}

// dispatch classifies the upstream response once and applies the matching
// transformation. Status and status text are always copied verbatim.
func (s *ProxyService) dispatch(in *model.InboundRequest, resp *model.UpstreamResponse) (*model.OutboundResponse, error) {
	header := s.reconstructHeaders(resp.Header)
	applyCORS(header, in.EdgeOrigin)

	declared := resp.Header.Get("Content-Type")
	decision := content.Classify(declared, in.Path)
	s.logger.Debug("content decision",
		"declared", declared,
		"category", decision.Category.String(),
		"path", in.Path,
	)
	if s.metrics != nil {
		s.metrics.ContentCategories.WithLabelValues(decision.Category.String()).Inc()
	}

	out := &model.OutboundResponse{
		StatusCode: resp.StatusCode,
		StatusText: resp.StatusText,
		Header:     header,
		Category:   decision.Category.String(),
	}

	if !decision.Category.IsText() {
		// Binary categories stream straight through; the caller closes the body.
		if decision.ContentType != "" {
			header.Set("Content-Type", decision.ContentType)
		}
		out.Body = resp.Body
		return out, nil
	}

	body, err := readAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", decision.Category, err)
	}
	s.logger.Debug("text response", "category", decision.Category.String(), "bytes", len(body))

	switch decision.Category {
	case content.HTML:
		body = s.rewriteHTML(body)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", content.TypeHTML)
		}
	case content.JSON:
		s.checkJSON(in.Path, body)
		header.Set("Content-Type", decision.ContentType)
	default:
		header.Set("Content-Type", decision.ContentType)
	}

	out.Body = io.NopCloser(bytes.NewReader(body))
	return out, nil
}

// renderRootDocument runs a successful root-fallback response through the
// HTML transformation, forcing the HTML content type.
func (s *ProxyService) renderRootDocument(in *model.InboundRequest, resp *model.UpstreamResponse) (*model.OutboundResponse, error) {
	header := s.reconstructHeaders(resp.Header)
	applyCORS(header, in.EdgeOrigin)

	body, err := readAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read root document: %w", err)
	}
	header.Set("Content-Type", content.TypeHTML)

	if s.metrics != nil {
		s.metrics.ContentCategories.WithLabelValues(content.HTML.String()).Inc()
	}

	return &model.OutboundResponse{
		StatusCode: resp.StatusCode,
		StatusText: resp.StatusText,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.rewriteHTML(body))),
		Category:   content.HTML.String(),
	}, nil
}

func (s *ProxyService) rewriteHTML(body []byte) []byte {
	html := string(body)
	s.logger.Debug("html response",
		"chars", len(html),
		"preview", strings.ReplaceAll(truncate(html, htmlPreviewLen), "\n", "↵"),
	)
	rewritten, n := s.rewriter.Rewrite(html)
	if n > 0 {
		s.logger.Debug("rewrote origin links", "count", n)
	}
	return []byte(rewritten)
}

// checkJSON logs a body that claims to be JSON but does not parse. The proxy
// is not a validating gateway: the body is delivered unchanged either way.
func (s *ProxyService) checkJSON(path string, body []byte) {
	if len(body) == 0 {
		return
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		s.logger.Warn("response declared as JSON does not parse",
			"path", path,
			"err", err,
		)
		if s.metrics != nil {
			s.metrics.InvalidJSON.Inc()
		}
	}
}

// readAll consumes and closes body.
func readAll(body io.ReadCloser) ([]byte, error) {
	defer func() { _ = body.Close() }()
	return io.ReadAll(body)
}

// drain discards whatever is left of body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
