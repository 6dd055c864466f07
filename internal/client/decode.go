package client

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
)

// ErrUnsupportedEncoding is returned when the origin applies a content-encoding
// the proxy cannot undo. Dropping the header without decoding would corrupt the body.
var ErrUnsupportedEncoding = errors.New("unsupported content-encoding")

// decodeBody wraps body so reads yield the payload with every listed
// content-coding removed. Codings are undone in reverse order of application.
// A coding the proxy cannot undo fails on the first Read with
// ErrUnsupportedEncoding, so a caller that only drains the body never sees it.
func decodeBody(contentEncoding string, body io.ReadCloser) io.ReadCloser {
	codings := parseCodings(contentEncoding)
	if len(codings) == 0 {
		return body
	}

	d := &decodedBody{Reader: body, closers: []io.Closer{body}}
	for i := len(codings) - 1; i >= 0; i-- {
		lr := &lazyReader{src: d.Reader, open: decoderFor(codings[i])}
		d.Reader = lr
		// Decoders close before the underlying connection body.
		d.closers = append([]io.Closer{lr}, d.closers...)
	}
	return d
}

func parseCodings(header string) []string {
	var out []string
	for _, c := range strings.Split(header, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || c == "identity" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func decoderFor(coding string) func(io.Reader) (io.Reader, error) {
	switch coding {
	case "gzip", "x-gzip":
		return func(r io.Reader) (io.Reader, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr, nil
		}
	case "deflate":
		return func(r io.Reader) (io.Reader, error) {
			zr, err := zlib.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr, nil
		}
	case "br":
		return func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil }
	case "zstd":
		return func(r io.Reader) (io.Reader, error) {
			d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		}
	}
	return func(io.Reader) (io.Reader, error) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, coding)
	}
}

// lazyReader defers decoder construction to the first Read, so an empty body
// (HEAD, 204, 304) with a declared encoding reads as empty instead of failing
// and an undecodable body fails only when someone reads it.
type lazyReader struct {
	src  io.Reader
	open func(io.Reader) (io.Reader, error)
	r    io.Reader
	err  error
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.r == nil && l.err == nil {
		l.r, l.err = l.open(l.src)
		if l.err != nil && !errors.Is(l.err, io.EOF) {
			l.err = fmt.Errorf("decode body: %w", l.err)
		}
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.r.Read(p)
}

func (l *lazyReader) Close() error {
	if l.r == nil {
		return nil
	}
	if c, ok := l.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var err error
	for _, c := range d.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
