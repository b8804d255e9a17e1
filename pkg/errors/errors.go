package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Kind classifies an error for callers that need to react to it without
// parsing messages.
type Kind string

const (
	KindInvalidTransition   Kind = "invalid_transition"
	KindResourceUnavailable Kind = "resource_unavailable"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindQueuePaused         Kind = "queue_paused"
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindRateLimited         Kind = "rate_limited"
	KindInternal            Kind = "internal"
)

// Resource classes reported by ResourceUnavailable.
const (
	ResourceDentist = "dentist"
	ResourceRoom    = "room"
)

// AppError represents an application error
type AppError struct {
	Code     ErrorCode `json:"code"`
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	Resource string    `json:"resource,omitempty"`
	Err      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrInvalidTransition
	ErrResourceUnavailable
	ErrConcurrencyConflict
	ErrQueuePaused
	ErrRateLimited
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Kind:    KindValidation,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Kind:    KindInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Kind:    KindUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// InvalidTransition reports a status change that is not reachable from the
// current status.
func InvalidTransition(from, to, reason string) *AppError {
	if reason == "" {
		reason = "invalid transition"
	}
	return &AppError{
		Code:    ErrInvalidTransition,
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s: %s -> %s", reason, from, to),
	}
}

// ResourceUnavailable reports which resource class could not be claimed.
func ResourceUnavailable(resource string) *AppError {
	return &AppError{
		Code:     ErrResourceUnavailable,
		Kind:     KindResourceUnavailable,
		Message:  fmt.Sprintf("no %s available, try again shortly", resource),
		Resource: resource,
	}
}

func ConcurrencyConflict(message string, err error) *AppError {
	if message == "" {
		message = "already handled by another request"
	}
	return &AppError{
		Code:    ErrConcurrencyConflict,
		Kind:    KindConcurrencyConflict,
		Message: message,
		Err:     err,
	}
}

func QueuePaused(location string) *AppError {
	return &AppError{
		Code:    ErrQueuePaused,
		Kind:    KindQueuePaused,
		Message: fmt.Sprintf("queue at %s is paused", location),
	}
}

func RateLimited() *AppError {
	return &AppError{
		Code:    ErrRateLimited,
		Kind:    KindRateLimited,
		Message: "rate limit exceeded",
	}
}

func Validation(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
