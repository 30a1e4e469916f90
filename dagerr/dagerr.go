// Package dagerr defines the fatal error taxonomy shared by the
// meta-transformer family: Configuration, Argument, Reduction,
// InnerTask, and Cancelled failures. It replaces the exception-driven
// control flow of the source system with ordinary Go errors carrying a
// Kind a caller can dispatch on via errors.As.
package dagerr

import (
	"errors"
	"fmt"

	"github.com/zerfoo/metagraph/producer"
)

// Kind classifies a fatal meta-transformer error.
type Kind int

const (
	// Configuration errors are raised at DAG validation or preparer
	// construction time: missing required fields, unresolved candidate
	// inputs, a non-constant-result evaluator, mixed preparer modes.
	Configuration Kind = iota
	// Argument errors are raised at setter time: k < 2, a negative
	// fold count, a nil required field.
	Argument
	// Reduction errors are raised at preparation finish when a
	// sub-DAG's outputs fail to reduce to constants.
	Reduction
	// InnerTask errors wrap a failure propagated from a wrapped
	// preparer's Finish, or a fold/candidate worker-pool task.
	InnerTask
	// Cancelled errors are raised when the outer executor cancels
	// preparation and inner tasks observe it at their next suspension
	// point.
	Cancelled
)

// String renders the Kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Argument:
		return "argument"
	case Reduction:
		return "reduction"
	case InnerTask:
		return "inner_task"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a fatal, tagged meta-transformer error.
type Error struct {
	Kind     Kind
	Op       string      // the failing operation, e.g. "kfold.Preparer.Finish"
	Producer producer.ID // offending producer, 0 if not applicable
	Err      error       // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a tagged Error.
func New(kind Kind, op string, prod producer.ID, err error) *Error {
	return &Error{Kind: kind, Op: op, Producer: prod, Err: err}
}

// Is reports whether err is a dagerr.Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
