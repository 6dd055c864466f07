package service

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-origin-proxy/internal/content"
	"edge-origin-proxy/internal/metrics"
	"edge-origin-proxy/internal/model"
)

func TestReconstructHeaders(t *testing.T) {
	m := metrics.New()
	svc := newTestService(t, nil, m)

	src := http.Header{
		"Set-Cookie":        {"a=1; Path=/", "b=2; HttpOnly", "c=3; Secure"},
		"Content-Encoding":  {"gzip"},
		"Content-Length":    {"512"},
		"Transfer-Encoding": {"chunked"},
		"Cache-Control":     {"max-age=60"},
		"Vary":              {"Accept", "Cookie"},
		"Bad Header":        {"x"},
		"X-Bad-Value":       {"line\r\nInjected: yes"},
		"X-Good":            {"ok"},
	}

	dst := svc.reconstructHeaders(src)

	assert.Equal(t, []string{"a=1; Path=/", "b=2; HttpOnly", "c=3; Secure"}, dst.Values("Set-Cookie"))
	assert.Empty(t, dst.Values("Content-Encoding"))
	assert.Empty(t, dst.Values("Content-Length"))
	assert.Empty(t, dst.Values("Transfer-Encoding"))
	assert.Equal(t, "max-age=60", dst.Get("Cache-Control"))
	assert.Equal(t, []string{"Accept", "Cookie"}, dst.Values("Vary"))
	assert.Equal(t, "ok", dst.Get("X-Good"))
	assert.Empty(t, dst.Values("Bad Header"))
	assert.Empty(t, dst.Values("X-Bad-Value"))
	assert.Empty(t, dst.Values("Injected"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HeadersSkipped))
}

func TestApplyCORS(t *testing.T) {
	h := http.Header{"Access-Control-Allow-Origin": {"*"}}
	applyCORS(h, "https://edge.example.com")

	assert.Equal(t, []string{"https://edge.example.com"}, h.Values("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization, X-Requested-With, New-API-User", h.Get("Access-Control-Allow-Headers"))
}

func upstreamResponse(status int, header http.Header, body *trackedBody) *model.UpstreamResponse {
	return &model.UpstreamResponse{
		StatusCode: status,
		StatusText: http.StatusText(status),
		Header:     header,
		Body:       body,
	}
}

func TestDispatch_Categories(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		declared     string
		status       int
		body         string
		wantType     string
		wantBody     string
		wantCategory content.Category
	}{
		{
			name:         "html rewritten",
			path:         "/about",
			declared:     "text/html",
			status:       http.StatusOK,
			body:         `<script src="http://166.108.203.60:3000/app.js"></script>`,
			wantType:     "text/html",
			wantBody:     `<script src="/app.js"></script>`,
			wantCategory: content.HTML,
		},
		{
			name:         "script forced type",
			path:         "/assets/app.js",
			declared:     "text/plain",
			status:       http.StatusOK,
			body:         `console.log("http://166.108.203.60:3000/")`,
			wantType:     content.TypeScript,
			wantBody:     `console.log("http://166.108.203.60:3000/")`,
			wantCategory: content.Script,
		},
		{
			name:         "stylesheet forced type",
			path:         "/assets/site.css",
			declared:     "",
			status:       http.StatusOK,
			body:         `body{}`,
			wantType:     content.TypeStylesheet,
			wantBody:     `body{}`,
			wantCategory: content.Stylesheet,
		},
		{
			name:         "invalid json passed through",
			path:         "/api/items",
			declared:     "application/json",
			status:       http.StatusCreated,
			body:         `{bad`,
			wantType:     content.TypeJSON,
			wantBody:     `{bad`,
			wantCategory: content.JSON,
		},
		{
			name:         "font forced type",
			path:         "/font/a.woff2",
			declared:     "application/octet-stream",
			status:       http.StatusOK,
			body:         "wOF2\x00\x01",
			wantType:     "font/woff2",
			wantBody:     "wOF2\x00\x01",
			wantCategory: content.Font,
		},
		{
			name:         "image forced type",
			path:         "/img/logo.svg",
			declared:     "text/plain",
			status:       http.StatusOK,
			body:         "<svg/>",
			wantType:     "image/svg+xml",
			wantBody:     "<svg/>",
			wantCategory: content.Image,
		},
		{
			name:         "other keeps declared type",
			path:         "/download/report.pdf",
			declared:     "application/pdf",
			status:       http.StatusPartialContent,
			body:         "%PDF",
			wantType:     "application/pdf",
			wantBody:     "%PDF",
			wantCategory: content.Other,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, nil, nil)
			header := http.Header{"Set-Cookie": {"sid=1", "theme=dark"}}
			if tt.declared != "" {
				header.Set("Content-Type", tt.declared)
			}
			body := newTrackedBody(tt.body)

			out, err := svc.dispatch(inbound(http.MethodGet, tt.path, nil, ""), upstreamResponse(tt.status, header, body))
			require.NoError(t, err)

			assert.Equal(t, tt.status, out.StatusCode)
			assert.Equal(t, http.StatusText(tt.status), out.StatusText)
			assert.Equal(t, tt.wantType, out.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantCategory.String(), out.Category)
			assert.Equal(t, []string{"sid=1", "theme=dark"}, out.Header.Values("Set-Cookie"))
			assert.Equal(t, "https://edge.example.com", out.Header.Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantBody, readBody(t, out))
			assert.True(t, body.isClosed(), "upstream body must be closed")
		})
	}
}

func TestDispatch_InvalidJSONCounted(t *testing.T) {
	m := metrics.New()
	svc := newTestService(t, nil, m)

	out, err := svc.dispatch(
		inbound(http.MethodGet, "/data.json", nil, ""),
		upstreamResponse(http.StatusOK, http.Header{}, newTrackedBody("{bad")),
	)
	require.NoError(t, err)
	assert.Equal(t, "{bad", readBody(t, out))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvalidJSON))

	out, err = svc.dispatch(
		inbound(http.MethodGet, "/data.json", nil, ""),
		upstreamResponse(http.StatusOK, http.Header{}, newTrackedBody(`{"ok":true}`)),
	)
	require.NoError(t, err)
	_ = readBody(t, out)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvalidJSON), "valid JSON must not be counted")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ContentCategories.WithLabelValues("json")))
}

func TestDispatch_HTMLWithoutDeclaredTypeAfterSkip(t *testing.T) {
	svc := newTestService(t, nil, nil)
	// A declared type with an illegal byte is classified as HTML but cannot be
	// copied, so the canonical HTML type fills the gap.
	header := http.Header{"Content-Type": {"text/html\x00"}}

	out, err := svc.dispatch(inbound(http.MethodGet, "/", nil, ""), upstreamResponse(http.StatusOK, header, newTrackedBody("<p>hi</p>")))
	require.NoError(t, err)

	assert.Equal(t, content.TypeHTML, out.Header.Get("Content-Type"))
	assert.Equal(t, "<p>hi</p>", readBody(t, out))
}

func TestPreflight(t *testing.T) {
	svc := newTestService(t, nil, nil)
	body := newTrackedBody("ignored")
	header := http.Header{
		"Content-Type":     {"text/plain"},
		"Content-Encoding": {"gzip"},
		"Set-Cookie":       {"x=1"},
		"Allow":            {"GET, POST"},
	}

	out := svc.preflight(inbound(http.MethodOptions, "/api/items", nil, ""), upstreamResponse(http.StatusOK, header, body))

	assert.Equal(t, http.StatusNoContent, out.StatusCode)
	assert.Empty(t, readBody(t, out))
	assert.True(t, body.isClosed())
	assert.Empty(t, out.Header.Get("Content-Type"))
	assert.Empty(t, out.Header.Get("Content-Encoding"))
	assert.Equal(t, []string{"x=1"}, out.Header.Values("Set-Cookie"))
	assert.Equal(t, "GET, POST", out.Header.Get("Allow"))
	assert.Equal(t, "https://edge.example.com", out.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", out.Header.Get("Access-Control-Allow-Credentials"))
	assert.NotEmpty(t, out.Header.Get("Access-Control-Allow-Methods"))
	assert.NotEmpty(t, out.Header.Get("Access-Control-Allow-Headers"))
}
