package client

import (
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised upstream; readBody can decode each of these.
const AcceptEncoding = "br, gzip, deflate"

var (
	// ErrUnsupportedEncoding is returned for a Content-Encoding readBody cannot decode.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrResponseTooLarge is returned when a decoded body exceeds the configured cap.
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// readBody reads r to the end, undoing the given Content-Encoding. The cap
// applies to decoded bytes, so a small compressed body cannot expand past
// it. limit <= 0 disables the cap.
func readBody(r io.Reader, encoding string, limit int64) ([]byte, error) {
	dec, err := decoder(r, strings.ToLower(strings.TrimSpace(encoding)))
	if err != nil {
		return nil, err
	}
	if c, ok := dec.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	if limit <= 0 {
		return io.ReadAll(dec)
	}

	body, err := io.ReadAll(io.LimitReader(dec, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, limit)
	}
	return body, nil
}

func decoder(r io.Reader, encoding string) (io.Reader, error) {
	switch encoding {
	case "", "identity":
		return r, nil
	case "br":
		return brotli.NewReader(r), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}
