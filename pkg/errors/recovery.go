// Panic recovery for worker goroutines and gonum calls that panic on
// malformed matrices. Recovered panics become *PanicError values.

package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is an error built from a recovered panic.
type PanicError struct {
	// PanicValue is the value passed to panic().
	PanicValue interface{}

	// StackTrace is the stack of the panicking goroutine.
	StackTrace string

	// Operation identifies where the panic was recovered.
	Operation string

	// Cause is the error the function had already set when it panicked.
	Cause error
}

func (e *PanicError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("panic in %s: %v (original error: %v)", e.Operation, e.PanicValue, e.Cause)
	}
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap returns Cause, or the panic value itself when it is an error
// (gonum panics with mat.ErrShape and friends).
func (e *PanicError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// String includes the stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("%s\nStack trace:\n%s", e.Error(), e.StackTrace)
}

// NewPanicError captures the current stack.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover turns a panic into a *PanicError stored in *err. It must be
// deferred directly:
//
//	func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "RandomForestClassifier.Fit")
//	    ...
//	}
//
// An error already stored in *err is kept as the PanicError's Cause.
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		panicErr := NewPanicError(operation, r)
		panicErr.Cause = *err
		*err = panicErr
	}
}

// SafeExecute runs fn and converts a panic into a *PanicError.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
