package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Domain error variables

var (
	// ErrNoCandidates: retrieval found zero usable chunks. User-facing,
	// terminal; no generation call is made and nothing is cached.
	ErrNoCandidates = NewDomainError(ErrorTypeNotFound, "no relevant documents found", nil)

	// ErrInvalidInput covers malformed requests caught at the boundary.
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// Provider misconfiguration (missing credentials). Not retried here.
	ErrEmbeddingUnavailable  = NewDomainError(ErrorTypeUnavailable, "embedding provider unavailable", nil)
	ErrGenerationUnavailable = NewDomainError(ErrorTypeUnavailable, "generation provider unavailable", nil)

	// ErrGenerationFailed: transient provider error surfaced to the caller.
	ErrGenerationFailed = NewDomainError(ErrorTypeExternal, "generation provider error", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// ErrorCode returns the taxonomy code recorded in the query log for an
// error, or "internal" for anything outside the taxonomy.
func ErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return string(domainErr.Type)
	}
	return string(ErrorTypeInternal)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnavailableError checks if an error is a provider-unavailable error
func IsUnavailableError(err error) bool {
	return hasType(err, ErrorTypeUnavailable)
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
