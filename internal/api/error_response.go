package api //nolint:revive // package name is intentional

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Error types not produced by the cache itself.
const (
	errTypeNotFound       = "not_found"
	errTypeUnavailable    = "service_unavailable"
	errTypeUpstream       = "upstream_error"
	errTypeInternal       = "internal_error"
	errTypeRequestTooLong = "request_too_large"
)
