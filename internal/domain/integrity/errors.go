package integrity

import (
	"errors"
	"fmt"

	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/domain/shared/service"
)

// ErrorKind classifies integrity failures for callers and operators.
type ErrorKind string

const (
	ErrKindConversion             ErrorKind = "CONVERSION_ERROR"
	ErrKindConstraintViolation    ErrorKind = "CONSTRAINT_VIOLATION"
	ErrKindConcurrentModification ErrorKind = "CONCURRENT_MODIFICATION"
	ErrKindNotRestorable          ErrorKind = "NOT_RESTORABLE"
	ErrKindDetection              ErrorKind = "DETECTION_ERROR"
	ErrKindInternal               ErrorKind = "INTERNAL_ERROR"
)

// ErrStaleFinding means a finding no longer applies to the current data.
// It is an expected outcome, not a failure.
var ErrStaleFinding = errors.New("finding no longer applies")

// Error is an integrity failure with a machine kind and a message an operator
// can act on.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewConversionError wraps a failed unit conversion.
func NewConversionError(err error, format string, args ...any) *Error {
	return newError(ErrKindConversion, err, format, args...)
}

// NewConstraintViolation reports a correction that would break an invariant.
func NewConstraintViolation(format string, args ...any) *Error {
	return newError(ErrKindConstraintViolation, nil, format, args...)
}

// NewConcurrentModification reports a record that changed underneath a fix.
func NewConcurrentModification(format string, args ...any) *Error {
	return newError(ErrKindConcurrentModification, nil, format, args...)
}

// NewNotRestorable reports a rollback or restore that cannot be performed.
func NewNotRestorable(format string, args ...any) *Error {
	return newError(ErrKindNotRestorable, nil, format, args...)
}

// NewDetectionError wraps a failure to load or evaluate the entity graph.
func NewDetectionError(err error, format string, args ...any) *Error {
	return newError(ErrKindDetection, err, format, args...)
}

// KindOf maps any error returned by the engine or its stores to an ErrorKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	var convErr *service.ConversionError
	if errors.As(err, &convErr) {
		return ErrKindConversion
	}
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		return ErrKindConcurrentModification
	}
	if errors.Is(err, inventory.ErrNegativeAvailable) {
		return ErrKindConstraintViolation
	}
	return ErrKindInternal
}

// MessageOf returns the operator-facing message of err.
func MessageOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Message
	}
	return err.Error()
}
