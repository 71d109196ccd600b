package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"testing"
)

func TestCacheError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"dimension mismatch", NewDimensionMismatchError(2, 3), ErrDimensionMismatch, true},
		{"degenerate", NewDegenerateVectorError(), ErrDegenerateVector, true},
		{"persistence", NewPersistenceError("load", "/tmp/x", fs.ErrNotExist), ErrPersistence, true},
		{"compute", NewComputeError("k", stderrors.New("boom")), ErrCompute, true},
		{"closed", NewClosedError("put"), ErrClosed, true},
		{"wrong type", NewComputeError("k", nil), ErrPersistence, false},
		{"wrapped", fmt.Errorf("outer: %w", NewDegenerateVectorError()), ErrDegenerateVector, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stderrors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.want)
			}
		})
	}
}

func TestCacheError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("upstream unavailable")
	err := NewComputeError("hello", cause)

	if !stderrors.Is(err, cause) {
		t.Fatalf("expected compute error to unwrap to its cause")
	}

	err = NewPersistenceError("load", "/nope", fs.ErrNotExist)
	if !stderrors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected persistence error to unwrap to fs.ErrNotExist")
	}
}

func TestCacheError_Message(t *testing.T) {
	err := NewPersistenceError("dump", "/tmp/cache.json", stderrors.New("disk full"))
	msg := err.Error()

	for _, s := range []string{"persistence_error", "op=dump", "key=/tmp/cache.json", "disk full"} {
		if !strings.Contains(msg, s) {
			t.Errorf("error message should contain %q, got %q", s, msg)
		}
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", NewInvalidRequestError("bad"), http.StatusBadRequest},
		{"dimension mismatch", NewDimensionMismatchError(1, 2), http.StatusBadRequest},
		{"compute", NewComputeError("k", nil), http.StatusBadGateway},
		{"closed", NewClosedError("get"), http.StatusServiceUnavailable},
		{"persistence", NewPersistenceError("load", "p", nil), http.StatusInternalServerError},
		{"plain error", stderrors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
