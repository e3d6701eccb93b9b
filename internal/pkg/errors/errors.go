package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDatabase           = "DATABASE_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeUnauthorized       = "UNAUTHORIZED"

	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeConnectivity       = "CONNECTIVITY_ERROR"
	ErrCodeCollection         = "COLLECTION_ERROR"
	ErrCodeScheduling         = "SCHEDULING_ERROR"
	ErrCodeUnknownAdapterKind = "UNKNOWN_ADAPTER_KIND"
	ErrCodePrecondition       = "PRECONDITION_FAILED"
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Code returns the AppError code carried by err, or an empty string.
func Code(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) is an AppError with code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// Common error constructors

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// ValidationError creates a validation error
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest).WithDetails(details)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, message, http.StatusInternalServerError)
}

// RateLimited creates a rate limited error
func RateLimited(message string) *AppError {
	return New(ErrCodeRateLimited, message, http.StatusTooManyRequests)
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// ServiceUnavailable creates a service unavailable error
func ServiceUnavailable(message string) *AppError {
	return New(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// ConfigurationError reports a missing or invalid adapter configuration field.
// It is fatal to a single adapter registration only.
func ConfigurationError(adapterID, field, reason string) *AppError {
	return New(ErrCodeConfiguration,
		fmt.Sprintf("adapter %s: invalid configuration field %q: %s", adapterID, field, reason),
		http.StatusUnprocessableEntity).WithDetails(map[string]interface{}{
		"adapter_id": adapterID,
		"field":      field,
	})
}

// ConnectivityError reports a failed health probe.
func ConnectivityError(adapterID, message string) *AppError {
	return New(ErrCodeConnectivity,
		fmt.Sprintf("adapter %s is unhealthy: %s", adapterID, message),
		http.StatusBadGateway).WithDetails(map[string]interface{}{
		"adapter_id": adapterID,
	})
}

// CollectionFault wraps an error raised while pulling evidence.
func CollectionFault(adapterID string, err error) *AppError {
	return Wrap(err, ErrCodeCollection,
		fmt.Sprintf("evidence collection failed for adapter %s", adapterID),
		http.StatusBadGateway)
}

// SchedulingFault wraps an error raised by a job body.
func SchedulingFault(jobID string, err error) *AppError {
	return Wrap(err, ErrCodeScheduling,
		fmt.Sprintf("job %s failed", jobID),
		http.StatusInternalServerError)
}

// UnknownAdapterKind reports an adapter kind or implementation with no constructor.
func UnknownAdapterKind(kind, implementation string) *AppError {
	msg := fmt.Sprintf("unknown adapter kind %q", kind)
	if implementation != "" {
		msg = fmt.Sprintf("unknown implementation %q for adapter kind %q", implementation, kind)
	}
	return New(ErrCodeUnknownAdapterKind, msg, http.StatusBadRequest)
}

// PreconditionFailed reports an operation attempted against a resource in the wrong state.
func PreconditionFailed(message string) *AppError {
	return New(ErrCodePrecondition, message, http.StatusPreconditionFailed)
}
