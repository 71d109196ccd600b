// Package httputil bounds how much of an upstream HTTP body is buffered.
package httputil

import (
	"errors"
	"fmt"
	"io"
)

// DefaultMaxEmbeddingResponse caps an embedding response at 32MB, roughly a
// 2048-text batch of 3072-dimension vectors.
const DefaultMaxEmbeddingResponse int64 = 32 << 20

// ErrBodyTooLarge is returned when a body exceeds its limit.
var ErrBodyTooLarge = errors.New("body too large")

// ReadLimited reads at most limit bytes. When the body is longer it returns
// the first limit bytes and an error wrapping ErrBodyTooLarge. A limit <= 0
// reads everything.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return data, err
	}
	if int64(len(data)) > limit {
		return data[:limit], fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// Drain discards the rest of r so the connection can be reused.
func Drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}
