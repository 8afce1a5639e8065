package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeCache         ErrorType = "cache"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
	ErrorTypeUnavailable   ErrorType = "unavailable"
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

// Is implements errors.Is. Two domain errors match when they share a type
// and message, so a wrapped sentinel still matches the sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e with err as its cause. Sentinels are shared, so
// call sites wrap them instead of attaching details directly.
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainError(e.Type, e.Message, err)
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. These are shared values: call Wrap before
// attaching details.
var (
	// Request errors
	ErrEmptyQuery    = NewDomainError(ErrorTypeValidation, "query cannot be empty", nil)
	ErrQueryTooLong  = NewDomainError(ErrorTypeValidation, "query is too long", nil)
	ErrCorpusMissing = NewDomainError(ErrorTypeNotFound, "corpus file not found", nil)

	// Configuration errors
	ErrEmbeddingUnconfigured = NewDomainError(ErrorTypeConfiguration, "embedding backend is not configured", nil)
	ErrAuditDisabled         = NewDomainError(ErrorTypeConfiguration, "query audit trail is disabled", nil)

	// Unavailable errors
	ErrIndexUnavailable = NewDomainError(ErrorTypeUnavailable, "newsletter index is still being built, try again shortly", nil)

	// Cache errors
	ErrCacheCorrupt = NewDomainError(ErrorTypeCache, "embedding cache is corrupt", nil)
	ErrCacheWrite   = NewDomainError(ErrorTypeCache, "embedding cache could not be written", nil)

	// Internal errors
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrEmptyIndex    = NewDomainError(ErrorTypeInternal, "no chunks could be embedded", nil)

	// External backend errors
	ErrBackendUnavailable = NewDomainError(ErrorTypeExternal, "embedding request failed", nil)
	ErrBackendTimeout     = NewDomainError(ErrorTypeExternal, "embedding request timed out", nil)
	ErrBackendRateLimit   = NewDomainError(ErrorTypeExternal, "embedding backend rate limit", nil)
)

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsConfigurationError checks if an error reports a missing credential or backend
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

// IsCacheError checks if an error is a cache error
func IsCacheError(err error) bool {
	return hasType(err, ErrorTypeCache)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an external backend error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// IsUnavailableError checks if an error reports a resource that is not ready yet
func IsUnavailableError(err error) bool {
	return hasType(err, ErrorTypeUnavailable)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
