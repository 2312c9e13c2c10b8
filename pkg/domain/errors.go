package domain

import "errors"

// Common domain errors
var (
	ErrNotFound            = errors.New("content not found")
	ErrNotPublished        = errors.New("content not published yet")
	ErrNoResponse          = errors.New("pipeline completed without producing a response")
	ErrFieldAlreadySet     = errors.New("pipeline context field already set")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrUpstreamUnreachable = errors.New("upstream service unreachable")
)

// DomainError carries the client-facing code and message of a failure while
// keeping the underlying error reachable through errors.Is and errors.As.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

// NewDomainError wraps err with a code and a message safe to return to clients.
func NewDomainError(err error, code, message string) *DomainError {
	return &DomainError{Err: err, Code: code, Message: message}
}

// WithDetail records a key/value pair logged next to the error.
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *DomainError) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the content API.
// RequestID echoes the X-Request-ID header so clients can correlate failures with logs.
type ErrorResponse struct {
	Code      string `json:"code"`                 // Machine-readable error code (e.g., NOT_FOUND, PIPELINE_ERROR)
	Message   string `json:"message"`              // Human-readable message (safe for logs)
	RequestID string `json:"request_id,omitempty"` // Optional correlation ID
	TraceID   string `json:"trace_id,omitempty"`   // Trace of the failed request, when sampled
}
