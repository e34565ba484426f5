package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error taxonomy returned by Service operations. Every error returned by the
// service matches exactly one of these through errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrNoAvailability  = errors.New("no availability")
	ErrConflict        = errors.New("conflicting concurrent update")
	ErrPolicyViolation = errors.New("policy violation")
	ErrPayment         = errors.New("payment failed")
	ErrState           = errors.New("invalid state transition")
	ErrForbidden       = errors.New("forbidden")

	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// AlternativesError reports that a modification could not be matched and
// carries the nearest start times that could be.
type AlternativesError struct {
	Requested    time.Time
	Alternatives []time.Time
}

// Error returns the formatted error message.
func (alternativesError *AlternativesError) Error() string {
	if len(alternativesError.Alternatives) == 0 {
		return fmt.Sprintf("%v at %s: no alternatives", ErrNoAvailability, alternativesError.Requested.Format(time.RFC3339))
	}
	formatted := make([]string, 0, len(alternativesError.Alternatives))
	for _, alternative := range alternativesError.Alternatives {
		formatted = append(formatted, alternative.Format("15:04"))
	}
	return fmt.Sprintf("%v at %s: try %s", ErrNoAvailability, alternativesError.Requested.Format(time.RFC3339), strings.Join(formatted, ", "))
}

// Unwrap returns ErrNoAvailability.
func (alternativesError *AlternativesError) Unwrap() error {
	return ErrNoAvailability
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func policyError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPolicyViolation, fmt.Sprintf(format, args...))
}

func stateError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

func wrapServiceError(subject string, code string, err error) error {
	return WrapError(errorOperationService, subject, code, err)
}
