package observable

import (
	"errors"
	"fmt"
)

// EngineError represents a failure surfaced by the derivation engine.
//
// Engine errors include:
//   - Missing source: a context-supplied source was read before the bundle
//     carrying it was provided
//   - Combinator failure: a combining function or subscriber panicked during
//     a notification pass started by TrySet
//
// The engine performs no recovery of its own; every EngineError is returned
// to the immediate caller.
type EngineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Source names the affected source, when known.
	Source string

	// Cause is the recovered panic value for combinator failures.
	Cause any
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeMissingSource indicates a source was requested before it existed.
	ErrCodeMissingSource ErrorCode = "MISSING_SOURCE"

	// ErrCodeCombinatorFailed indicates a panic inside a notification pass.
	ErrCodeCombinatorFailed ErrorCode = "COMBINATOR_FAILED"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s (source=%s)", e.Code, e.Message, e.Source)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes a recovered error value so errors.Is/As see through it.
func (e *EngineError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// NewMissingSourceError creates an EngineError for a source that is not available.
func NewMissingSourceError(source, reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeMissingSource,
		Message: reason,
		Source:  source,
	}
}

// NewCombinatorError creates an EngineError from a recovered panic value.
func NewCombinatorError(recovered any) *EngineError {
	return &EngineError{
		Code:    ErrCodeCombinatorFailed,
		Message: fmt.Sprintf("notification pass panicked: %v", recovered),
		Cause:   recovered,
	}
}

// IsMissingSource returns true if the error is a missing source error.
// Uses errors.As to handle wrapped errors.
func IsMissingSource(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeMissingSource
	}
	return false
}

// IsCombinatorError returns true if the error is a combinator failure.
// Uses errors.As to handle wrapped errors.
func IsCombinatorError(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeCombinatorFailed
	}
	return false
}
