package resolver

import (
	"errors"
	"fmt"
)

// ErrorClass separates caller-correctable input errors from resolver bugs.
type ErrorClass string

const (
	// ErrorClassValidation indicates invalid user input: cross-flag
	// constraint violations or out-of-enum parameters. Recoverable by
	// correcting the intent; never retried.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassInternal indicates a builder invariant violated despite the
	// intent passing validation. Fatal within a single resolution.
	ErrorClassInternal ErrorClass = "internal"
)

// Constraint codes surfaced verbatim on validation failures.
const (
	ConstraintIAMAuthRequiresCloudFront = "iam_auth_requires_cloudfront"
	ConstraintWAFRequiresCloudFront     = "waf_requires_cloudfront"
	ConstraintInvalidRetentionDays      = "invalid_retention_days"
	ConstraintInvalidField              = "invalid_field"
)

// ResolveError is a classified resolver error with context.
type ResolveError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Constraint is the violated constraint code for validation errors.
	Constraint string `json:"constraint,omitempty"`

	// Descriptor is the descriptor ID being built when the error occurred.
	Descriptor string `json:"descriptor,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	switch {
	case e.Constraint != "":
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Constraint, e.Message)
	case e.Descriptor != "":
		return fmt.Sprintf("[%s] %s (descriptor=%s)%s", e.Class, e.Message, e.Descriptor, e.unwrapSuffix())
	default:
		return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

func (e *ResolveError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality for errors.Is.
func (e *ResolveError) Is(target error) bool {
	t, ok := target.(*ResolveError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Constraint == t.Constraint
}

// NewValidationError creates a validation error carrying the violated
// constraint code.
func NewValidationError(constraint, message string) *ResolveError {
	return &ResolveError{
		Class:      ErrorClassValidation,
		Constraint: constraint,
		Message:    message,
	}
}

// NewInternalError creates an internal-consistency error.
func NewInternalError(message string, err error) *ResolveError {
	return &ResolveError{
		Class:   ErrorClassInternal,
		Message: message,
		Err:     err,
	}
}

// WithDescriptor adds descriptor context to an error.
func (e *ResolveError) WithDescriptor(id string) *ResolveError {
	e.Descriptor = id
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ResolveError) WithDetail(key string, value interface{}) *ResolveError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsValidation returns true if the error is a user-input validation error.
func IsValidation(err error) bool {
	var e *ResolveError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsInternal returns true if the error is an internal-consistency error.
func IsInternal(err error) bool {
	var e *ResolveError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInternal
	}
	return false
}

// ConstraintOf returns the violated constraint code, or "" if the error is
// not a validation error.
func ConstraintOf(err error) string {
	var e *ResolveError
	if errors.As(err, &e) {
		return e.Constraint
	}
	return ""
}
