package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int64
		want    string
		tooLong bool
	}{
		{"within limit", "hello", 10, "hello", false},
		{"exact limit", "hello", 5, "hello", false},
		{"oversize", "helloworld", 5, "hello", true},
		{"unlimited", "helloworld", 0, "helloworld", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ReadLimited(strings.NewReader(tt.input), tt.limit)
			if tt.tooLong != errors.Is(err, ErrBodyTooLarge) {
				t.Fatalf("ReadLimited() error = %v, tooLong %v", err, tt.tooLong)
			}
			if string(body) != tt.want {
				t.Fatalf("unexpected body: %s", string(body))
			}
		})
	}
}

func TestDrain(t *testing.T) {
	r := strings.NewReader("leftover")
	Drain(r)
	if r.Len() != 0 {
		t.Fatalf("expected reader to be drained, %d bytes left", r.Len())
	}
}
