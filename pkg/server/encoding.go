package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Content encodings accepted on /write.
const (
	EncodingGzip = "gzip"
	EncodingZstd = "zstd"
)

var (
	errUnsupportedEncoding = errors.New("unsupported content encoding")
	errMalformedBody       = errors.New("malformed compressed body")
)

// readBody reads the request body, decompressing it per Content-Encoding.
// limit bounds the body both as sent and once decompressed.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, limit)

	var dec io.Reader
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return io.ReadAll(body)
	case EncodingGzip:
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, decodeError(err)
		}
		defer zr.Close()
		dec = zr
	case EncodingZstd:
		zr, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, decodeError(err)
		}
		defer zr.Close()
		dec = zr
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, enc)
	}

	data, err := io.ReadAll(io.LimitReader(dec, limit+1))
	if err != nil {
		return nil, decodeError(err)
	}
	if int64(len(data)) > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}
	return data, nil
}

// decodeError keeps a size-limit error intact and reports anything else as
// a malformed body.
func decodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return fmt.Errorf("%w: %v", errMalformedBody, err)
}
