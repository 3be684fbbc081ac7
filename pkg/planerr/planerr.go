// Package planerr defines the error taxonomy shared by every planning
// component: a fixed set of kinds, each with a stable machine code that
// HTTP and CLI glue can map to a status/exit code without re-deriving it.
package planerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// KindNotFound covers a missing city, POI, tour, version, or language.
	KindNotFound Kind = iota
	// KindInvalid covers malformed input: unknown language, bad date, unrecognized mode, out-of-range coordinates.
	KindInvalid
	// KindInfeasible covers a CP model (and greedy fallback) with no legal solution.
	KindInfeasible
	// KindExternalTransient covers retryable upstream failures (429/529, timeouts, connection errors).
	KindExternalTransient
	// KindExternalUnavailable covers a transient error whose retry budget was exhausted.
	KindExternalUnavailable
	// KindExternalPermanent covers non-retryable upstream failures: 4xx, bad credentials, quota, unparseable response.
	KindExternalPermanent
	// KindConflict covers a concurrent edit detected while a per-tour lock is held.
	KindConflict
	// KindIO covers a disk read/write failure.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalid:
		return "Invalid"
	case KindInfeasible:
		return "Infeasible"
	case KindExternalTransient:
		return "ExternalTransient"
	case KindExternalUnavailable:
		return "ExternalUnavailable"
	case KindExternalPermanent:
		return "ExternalPermanent"
	case KindConflict:
		return "Conflict"
	case KindIO:
		return "IO"
	default:
		return "Unknown"
	}
}

// Error is a planning error carrying a kind, a stable machine code, and the
// underlying cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error

	// Diagnosis lists, for an Infeasible error, the first few violated
	// constraints that blocked a solve (the violation list sequencer.Solve
	// and the Greedy Sequencer report).
	Diagnosis []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the given kind, machine code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an Error that chains an underlying cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindIO if err is not a
// *Error (an invariant violation local code should never rely on).
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindIO
}

// CodeOf extracts the stable machine code from err, or "" if err is not a
// *Error.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Common sentinel-style constructors used across packages.

func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }
func Invalid(code, message string) *Error  { return New(KindInvalid, code, message) }
func Conflict(code, message string) *Error { return New(KindConflict, code, message) }
func IO(code, message string, cause error) *Error {
	return Wrap(KindIO, code, message, cause)
}

// Infeasible builds an Infeasible error carrying the first violated
// constraint names (at most three, per the propagation policy).
func Infeasible(code, message string, diagnosis []string) *Error {
	if len(diagnosis) > 3 {
		diagnosis = diagnosis[:3]
	}
	return &Error{Kind: KindInfeasible, Code: code, Message: message, Diagnosis: diagnosis}
}
