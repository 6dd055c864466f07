package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"edge-origin-proxy/internal/config"
	"edge-origin-proxy/internal/metrics"
	"edge-origin-proxy/internal/model"
)

const testOrigin = "http://166.108.203.60:3000"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// trackedBody records whether the service closed an upstream body.
type trackedBody struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func newTrackedBody(s string) *trackedBody {
	return &trackedBody{Reader: strings.NewReader(s)}
}

func (b *trackedBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *trackedBody) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// fakeUpstream answers each Send with the next scripted reply.
type fakeUpstream struct {
	mu       sync.Mutex
	replies  []func(*model.OutboundRequest) (*model.UpstreamResponse, error)
	requests []*model.OutboundRequest
}

func (f *fakeUpstream) Send(_ context.Context, out *model.OutboundRequest) (*model.UpstreamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, out)
	if len(f.replies) == 0 {
		panic("fakeUpstream: unexpected request to " + out.URL)
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next(out)
}

func reply(status int, header http.Header, body *trackedBody) func(*model.OutboundRequest) (*model.UpstreamResponse, error) {
	return func(*model.OutboundRequest) (*model.UpstreamResponse, error) {
		if header == nil {
			header = http.Header{}
		}
		return &model.UpstreamResponse{
			StatusCode: status,
			StatusText: http.StatusText(status),
			Header:     header,
			Body:       body,
		}, nil
	}
}

func newTestService(t *testing.T, up Upstream, m *metrics.Metrics) *ProxyService {
	t.Helper()
	return newTestServiceFor(t, testOrigin, up, m)
}

func newTestServiceFor(t *testing.T, base string, up Upstream, m *metrics.Metrics) *ProxyService {
	t.Helper()
	cfg := &config.Config{Upstream: config.UpstreamConfig{BaseURL: base}}
	svc, err := NewProxyService(up, cfg, discardLogger(), m)
	require.NoError(t, err)
	return svc
}

func inbound(method, pathQuery string, header http.Header, body string) *model.InboundRequest {
	if header == nil {
		header = http.Header{}
	}
	path := pathQuery
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	in := &model.InboundRequest{
		Method:     method,
		PathQuery:  pathQuery,
		Path:       path,
		Header:     header,
		EdgeOrigin: "https://edge.example.com",
	}
	if body != "" {
		in.Body = io.NopCloser(strings.NewReader(body))
	}
	return in
}

func readBody(t *testing.T, resp *model.OutboundResponse) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
