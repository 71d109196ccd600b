package api //nolint:revive // package name is intentional

import "time"

const (
	// DefaultMaxBodySize is the default maximum request body size (8MB).
	// Enough for a few thousand float64 dimensions in JSON.
	DefaultMaxBodySize = 8 * 1024 * 1024

	// DefaultThreshold is used by search requests that omit a threshold.
	DefaultThreshold = 0.9

	// DefaultEmbedTimeout bounds a shared embedding computation, retries
	// included. It does not depend on any one caller staying connected.
	DefaultEmbedTimeout = 2 * time.Minute
)
