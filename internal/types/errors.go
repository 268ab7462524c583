package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Validation (400). These correspond to per-account configuration
	// problems: the offending account is skipped, the cycle continues.
	ErrCodeValidationInvalidTimezone  ErrorCode = "validation_invalid_timezone"
	ErrCodeValidationInvalidTimeOfDay ErrorCode = "validation_invalid_time_of_day"
	ErrCodeValidationInvalidPostRange ErrorCode = "validation_invalid_post_range"
	ErrCodeValidationInvalidDate      ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidPlatform  ErrorCode = "validation_invalid_platform"
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationNegativeCount    ErrorCode = "validation_negative_count"

	// Not Found (404)
	ErrCodeNotFoundAccount ErrorCode = "not_found_account"
	ErrCodeNotFoundJob     ErrorCode = "not_found_job"

	// Conflict (409)
	ErrCodeConflictIllegalTransition ErrorCode = "conflict_illegal_status_transition"

	// Internal/Upstream (500/502). These are infrastructure failures that
	// abort the whole planning or dispatch cycle and propagate to the caller.
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamBroker     ErrorCode = "upstream_broker_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// IsInfrastructure reports whether the code represents a store or broker
// failure. Infrastructure failures are fatal to the entire planning/dispatch
// cycle; everything else is isolated to the account or job being processed.
func (c ErrorCode) IsInfrastructure() bool {
	s := string(c)
	return strings.HasPrefix(s, "internal_") || strings.HasPrefix(s, "upstream_")
}

// AppError is the standard application error type used throughout the service.
// All domain errors should be expressed as AppError to enable consistent
// error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
