// Package cerr defines the core error taxonomy shared by every coresig
// component: premem, oslist, oshash, mbuf, timer, xsd and xmlp all return
// one of these codes rather than panicking or returning an ad-hoc error.
package cerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the core error enum (spec.md §7).
type Code int

const (
	OK Code = iota
	NullPointer
	InvalidValue
	ExtInvalidValue
	MemoryAllocFailure
	SystemFailure
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case NullPointer:
		return "NullPointer"
	case InvalidValue:
		return "InvalidValue"
	case ExtInvalidValue:
		return "ExtInvalidValue"
	case MemoryAllocFailure:
		return "MemoryAllocFailure"
	case SystemFailure:
		return "SystemFailure"
	default:
		return "Unknown"
	}
}

// Error pairs a Code with a wrapped cause. The cause is carried via
// github.com/pkg/errors so %+v on a coresig error prints a stack trace
// from the point the Code was first attached.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given code with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, cause: errors.Errorf(format, args...)}
}

// Wrap attaches code to an existing error, preserving its stack/cause
// chain via errors.Wrap. Returns nil if err is nil.
func Wrap(code Code, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, cause: errors.Wrap(err, msg)}
}

// AsInvalidValue is the XML validator's propagation policy (spec.md §7):
// every downstream error surfaced by the validator is re-wrapped as
// InvalidValue regardless of its original code, with the original
// preserved as the cause.
func AsInvalidValue(err error, reason string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(InvalidValue, err, reason)
}

// CodeOf extracts the Code from err if it (or something it wraps) is a
// *Error; otherwise returns SystemFailure, since an error without a code
// attached originated outside the core's own error model.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return SystemFailure
}
