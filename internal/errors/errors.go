package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeMalformedAssertion indicates an identity assertion that could not be decoded.
	ErrCodeMalformedAssertion ErrorCode = "malformed_assertion"
	// ErrCodeDomainRejected indicates an email outside the permitted domain.
	ErrCodeDomainRejected ErrorCode = "domain_rejected"
	// ErrCodeNotWhitelisted indicates an email that is not on the allow-list.
	ErrCodeNotWhitelisted ErrorCode = "not_whitelisted"
	// ErrCodeRateLimited indicates the caller exceeded its attempt budget.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeTokenMalformed indicates a session token with the wrong shape or payload.
	ErrCodeTokenMalformed ErrorCode = "token_malformed"
	// ErrCodeTokenExpired indicates a session token past its expiry.
	ErrCodeTokenExpired ErrorCode = "token_expired"
	// ErrCodeTokenInvalidSignature indicates a session token whose signature does not match.
	ErrCodeTokenInvalidSignature ErrorCode = "token_invalid_signature"
	// ErrCodeInsufficientRole indicates a valid session lacking the required role.
	ErrCodeInsufficientRole ErrorCode = "insufficient_role"
	// ErrCodeRenewalTimeout indicates a silent renewal attempt that did not finish in time.
	ErrCodeRenewalTimeout ErrorCode = "renewal_timeout"
	// ErrCodeRenewalDeclined indicates the identity provider declined silent renewal.
	ErrCodeRenewalDeclined ErrorCode = "renewal_declined"
	// ErrCodeAuthenticationRequired indicates the caller has no usable session.
	ErrCodeAuthenticationRequired ErrorCode = "authentication_required"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the specific field that caused the error (validation errors only).
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by code so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return New(ErrCodeConflict, message) }

// Validation creates a new Validation error.
func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError { return New(ErrCodeInternal, message) }

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Sentinels for errors.Is comparisons; they match any AppError with the same code.
var (
	ErrMalformedAssertion     = &AppError{Code: ErrCodeMalformedAssertion}
	ErrDomainRejected         = &AppError{Code: ErrCodeDomainRejected}
	ErrNotWhitelisted         = &AppError{Code: ErrCodeNotWhitelisted}
	ErrRateLimited            = &AppError{Code: ErrCodeRateLimited}
	ErrTokenMalformed         = &AppError{Code: ErrCodeTokenMalformed}
	ErrTokenExpired           = &AppError{Code: ErrCodeTokenExpired}
	ErrTokenInvalidSignature  = &AppError{Code: ErrCodeTokenInvalidSignature}
	ErrInsufficientRole       = &AppError{Code: ErrCodeInsufficientRole}
	ErrRenewalTimeout         = &AppError{Code: ErrCodeRenewalTimeout}
	ErrRenewalDeclined        = &AppError{Code: ErrCodeRenewalDeclined}
	ErrAuthenticationRequired = &AppError{Code: ErrCodeAuthenticationRequired}
)

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// IsAccessDenied reports whether err is a domain or allow-list rejection.
func IsAccessDenied(err error) bool {
	return isCode(err, ErrCodeDomainRejected) || isCode(err, ErrCodeNotWhitelisted)
}

// IsUnauthenticated reports whether err means the presented session token is unusable.
func IsUnauthenticated(err error) bool {
	switch GetCode(err) {
	case ErrCodeTokenMalformed, ErrCodeTokenExpired, ErrCodeTokenInvalidSignature,
		ErrCodeAuthenticationRequired:
		return true
	default:
		return false
	}
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
