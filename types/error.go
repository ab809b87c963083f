package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Ingestion error codes
const (
	ErrExtractionGap  ErrorCode = "EXTRACTION_GAP"
	ErrEmptyDocument  ErrorCode = "EMPTY_DOCUMENT"
	ErrLedgerConflict ErrorCode = "LEDGER_CONFLICT"
	ErrTokenizerError ErrorCode = "TOKENIZER_ERROR"
)

// Query-path error codes
const (
	ErrRetrievalEmpty          ErrorCode = "RETRIEVAL_EMPTY"
	ErrAgentParseFailure       ErrorCode = "AGENT_PARSE_FAILURE"
	ErrCollaboratorUnavailable ErrorCode = "COLLABORATOR_UNAVAILABLE"
	ErrQuestionTimeout         ErrorCode = "QUESTION_TIMEOUT"
	ErrInvalidRequest          ErrorCode = "INVALID_REQUEST"
	ErrRateLimited             ErrorCode = "RATE_LIMITED"
	ErrInternalError           ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Category  string    `json:"category,omitempty"` // evidence category for degraded answers
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithCategory tags the error with the evidence category it concerns.
func (e *Error) WithCategory(category string) *Error {
	e.Category = category
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
