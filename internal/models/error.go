package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidSecret   = "INVALID_SECRET"
	ErrCodeInvalidRound    = "INVALID_ROUND"
	ErrCodeUpstreamFailure = "UPSTREAM_FAILURE"
	ErrCodeEmptyGeneration = "EMPTY_GENERATION"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
)
