// Package model defines the per-request types that flow through the proxy.
package model

import (
	"io"
	"net/http"
)

// InboundRequest is the caller's request as received at the edge.
type InboundRequest struct {
	Method string
	// PathQuery is the request path including the raw query string, e.g. "/a/b?x=1".
	PathQuery string
	// Path is the request path without the query string.
	Path   string
	Header http.Header
	// Body is nil for methods that never carry a forwarded body.
	Body io.ReadCloser
	// EdgeOrigin is the caller-visible origin (scheme://host) of the edge endpoint.
	EdgeOrigin string
}

// OutboundRequest is the request sent to the fixed upstream origin.
// Body holds the full text so the request can be replayed for the root fallback.
type OutboundRequest struct {
	Method  string
	URL     string
	Host    string
	Header  http.Header
	Body    []byte
	HasBody bool
}

// UpstreamResponse is the response received from the origin. Body is already
// decoded when the origin applied a content-encoding.
type UpstreamResponse struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
}

// OutboundResponse is what the edge returns to the caller.
type OutboundResponse struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
	// Category is the content category that drove the transformation.
	Category string
}

// ContextKeyCategory is the echo context key under which the proxy handler
// records the content category it dispatched, for the access log.
const ContextKeyCategory = "proxy.category"
