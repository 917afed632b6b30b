package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the categories of errors the gateway returns to
// callers. Each maps to exactly one HTTP status in internal/httpapi.
type ErrorType string

const (
	ErrTypeBadJSON           ErrorType = "bad_json"
	ErrTypeMissingQuestion   ErrorType = "missing_question"
	ErrTypeGuardRejection    ErrorType = "guard_rejection"
	ErrTypeUnauthorized      ErrorType = "unauthorized"
	ErrTypeMethodNotAllowed  ErrorType = "method_not_allowed"
	ErrTypeDatabaseUnavail   ErrorType = "database_unavailable"
	ErrTypeLLMFailure        ErrorType = "llm_failure"
	ErrTypePlannerParse      ErrorType = "planner_parse_error"
	ErrTypeExecution         ErrorType = "execution_error"
	ErrTypeRetryExhausted    ErrorType = "retry_exhausted"
	ErrTypeDeadlineExceeded  ErrorType = "request_deadline_exceeded"
	ErrTypeConfig            ErrorType = "config"
	ErrTypeInternal          ErrorType = "internal"
)

// Error is a structured error carrying a taxonomy type plus the detail
// fields each taxonomy entry in the spec requires (kind/detail/sql for
// guard rejections, stage for LLM failures, raw for parse errors, sql for
// execution/retry failures).
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string

	// GuardKind is set only for ErrTypeGuardRejection.
	GuardKind string
	// SQL carries the offending or attempted statement, when known.
	SQL string
	// Stage names the LLM call that failed (plan, summarize, ...).
	Stage string
	// Raw carries the unparseable planner reply, for ErrTypePlannerParse.
	Raw string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error.
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Newf creates a new structured error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...), Cause: err}
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error.
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// GuardRejection builds the ErrTypeGuardRejection error the spec requires,
// carrying the rule that tripped, human detail, and the SQL under review.
func GuardRejection(kind, detail, sql string) *Error {
	return &Error{
		Type:      ErrTypeGuardRejection,
		Message:   detail,
		GuardKind: kind,
		SQL:       sql,
	}
}

// LLMFailure wraps an underlying transport/provider error with the stage
// name (plan or summarize) that was in flight when it happened.
func LLMFailure(stage string, cause error) *Error {
	return &Error{
		Type:    ErrTypeLLMFailure,
		Message: fmt.Sprintf("llm call failed during %s", stage),
		Cause:   cause,
		Stage:   stage,
	}
}

// PlannerParseError reports a planner reply that survived the HTTP round
// trip but could not be parsed into a Plan.
func PlannerParseError(raw string, cause error) *Error {
	return &Error{
		Type:    ErrTypePlannerParse,
		Message: "planner reply could not be parsed",
		Cause:   cause,
		Raw:     raw,
	}
}

// ExecutionError reports a query that passed the Guard but failed against
// the live database.
func ExecutionError(sql string, cause error) *Error {
	return &Error{
		Type:    ErrTypeExecution,
		Message: "query execution failed",
		Cause:   cause,
		SQL:     sql,
	}
}

// RetryExhausted reports that the single permitted planner retry also
// failed.
func RetryExhausted(sql string, cause error) *Error {
	return &Error{
		Type:    ErrTypeRetryExhausted,
		Message: "retry exhausted",
		Cause:   cause,
		SQL:     sql,
	}
}

// DeadlineExceeded reports that the request's per-request context expired
// or was canceled while cause was in flight. cause is preserved so the
// original failure (LLM timeout, stalled query, ...) is still visible in
// logs even though the caller sees RequestDeadlineExceeded.
func DeadlineExceeded(cause error) *Error {
	return &Error{
		Type:    ErrTypeDeadlineExceeded,
		Message: "request deadline exceeded",
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error with suggestions, matching
// the shape used throughout cmd/ for startup failures.
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("check your configuration file or environment variables").
		WithSuggestion("run with --help to see valid configuration options")
}
