// Package mserr defines the error taxonomy used across the mass-spectrometry
// core (spec §7). Every stage that can fail reports one of a small set of
// kinds so callers can decide whether to abort, log and continue, or treat
// the condition as a normal boundary case.
package mserr

import "fmt"

// Kind enumerates the error categories from spec §7.
type Kind int

const (
	// InvalidArgument: a parameter is out of its declared domain, or a
	// required anchor/argument is missing.
	InvalidArgument Kind = iota
	// MissingInformation: an input record lacks metadata the stage requires.
	MissingInformation
	// InvalidData: a structural invariant is violated.
	InvalidData
	// ConversionError: a value cannot be safely cast or reinterpreted.
	ConversionError
	// NoSuccessor: a neighbor-query boundary. Always caught locally by the
	// caller; never meant to escape a package boundary.
	NoSuccessor
	// FitQualityBelowThreshold: a fit completed but failed acceptance tests.
	FitQualityBelowThreshold
	// NotImplemented: a stage does not support a requested kind/variant.
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case MissingInformation:
		return "MissingInformation"
	case InvalidData:
		return "InvalidData"
	case ConversionError:
		return "ConversionError"
	case NoSuccessor:
		return "NoSuccessor"
	case FitQualityBelowThreshold:
		return "FitQualityBelowThreshold"
	case NotImplemented:
		return "NotImplemented"
	default:
		return "UnknownErrorKind"
	}
}

// Error is a tagged error carrying a Kind, the component that raised it,
// and a brief message. Stages wrap underlying errors with fmt.Errorf's
// %w verb so callers can still unwrap to the original cause.
type Error struct {
	Kind     Kind
	Location string // component/operation that raised the error, e.g. "peakdata.SpectralMap.load_from"
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Location, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Location, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no underlying cause.
func New(kind Kind, location, message string) *Error {
	return &Error{Kind: kind, Location: location, Message: message}
}

// Wrap constructs an *Error around an existing error.
func Wrap(kind Kind, location, message string, cause error) *Error {
	return &Error{Kind: kind, Location: location, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind. It does not
// recurse through wrapped non-mserr errors; callers needing that should
// use errors.As on *Error directly.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
