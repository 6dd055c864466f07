package service

import (
	"bytes"
	"io"
	"net/http"

	"edge-origin-proxy/internal/model"
)

// excludedRequestHeaders are edge-transport artifacts that must never reach
// the origin with the caller's values.
var excludedRequestHeaders = map[string]bool{
	"Host":             true,
	"Connection":       true,
	"X-Forwarded-For":  true,
	"Cf-Connecting-Ip": true,
	"Cf-Ray":           true,
	"True-Client-Ip":   true,
	"X-Real-Ip":        true,
}

// bodyMethods are the only methods whose inbound body is forwarded.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// cookieLogLimit caps how much of a forwarded Cookie header reaches the debug log.
const cookieLogLimit = 100

// BuildRequest derives the outbound request for in. It never fails: a body
// that cannot be read is logged and the request proceeds without one.
func (s *ProxyService) BuildRequest(in *model.InboundRequest) *model.OutboundRequest {
	out := &model.OutboundRequest{
		Method: in.Method,
		URL:    s.TargetURL(in.PathQuery),
		Host:   s.origin.Host,
		Header: s.filterRequestHeaders(in.Header),
	}

	out.Header.Set("Origin", s.originRoot)
	out.Header.Set("Referer", s.TargetURL(in.PathQuery))

	if cookie := in.Header.Get("Cookie"); cookie != "" {
		s.logger.Debug("forwarding cookies", "cookie", truncate(cookie, cookieLogLimit))
	}

	if bodyMethods[in.Method] && in.Body != nil {
		data, err := io.ReadAll(in.Body)
		// Put the consumed bytes back in front of whatever is left so
		// in.Body can be read again after the request is built.
		in.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), in.Body))
		if err != nil {
			s.logger.Warn("reading request body failed; forwarding without body",
				"method", in.Method,
				"path", in.Path,
				"err", err,
			)
			return out
		}
		out.Body = data
		out.HasBody = true
		s.logger.Debug("request body",
			"content_type", in.Header.Get("Content-Type"),
			"length", len(data),
		)
	}

	return out
}

// TargetURL returns the upstream URL for an inbound path and query.
func (s *ProxyService) TargetURL(pathQuery string) string {
	if pathQuery == "" {
		pathQuery = "/"
	}
	return s.baseURL + pathQuery
}

// RootURL returns the upstream's own root document URL.
func (s *ProxyService) RootURL() string {
	return s.baseURL + "/"
}

func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		canon := http.CanonicalHeaderKey(key)
		if excludedRequestHeaders[canon] {
			continue
		}
		dst[canon] = append(dst[canon], vals...)
	}
	return dst
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
