// Package apxerr defines the error taxonomy shared by every APX core
// component, so callers can recover the kind of a failure with errors.As
// instead of matching on wrapped string text.
package apxerr

import "fmt"

// Code identifies a class of failure from the APX core. Codes are not
// HTTP-style status values; they describe which subsystem rejected the
// call and whether the caller or the connection should react.
type Code int

// Error kinds, see spec section 7 ("ERROR HANDLING DESIGN").
const (
	InvalidArgument Code = iota + 1
	MemError
	BufferBoundary
	BufferFull
	LengthError
	ValueError
	DVTypeError
	UnexpectedAddress
	FileTooLarge
	AddressSpaceExhausted
	AddressInUse
	TransmitUnavailable
	KeyNotFound
	TooShort
	ProtocolError
)

func (c Code) String() string {
	switch c {
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case MemError:
		return "MEM_ERROR"
	case BufferBoundary:
		return "BUFFER_BOUNDARY"
	case BufferFull:
		return "BUFFER_FULL"
	case LengthError:
		return "LENGTH_ERROR"
	case ValueError:
		return "VALUE_ERROR"
	case DVTypeError:
		return "DV_TYPE_ERROR"
	case UnexpectedAddress:
		return "UNEXPECTED_ADDRESS"
	case FileTooLarge:
		return "FILE_TOO_LARGE"
	case AddressSpaceExhausted:
		return "ADDRESS_SPACE_EXHAUSTED"
	case AddressInUse:
		return "ADDRESS_IN_USE"
	case TransmitUnavailable:
		return "TRANSMIT_UNAVAILABLE"
	case KeyNotFound:
		return "KEY_NOT_FOUND"
	case TooShort:
		return "TOO_SHORT"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type returned across the core's API
// boundary. Op names the failing operation (e.g. "filemap.Insert") for
// logs; Cause is optional and unwraps normally.
type Error struct {
	Code  Code
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(op string, code Code) error {
	return &Error{Op: op, Code: code}
}

// Wrap builds an *Error wrapping cause. If cause is nil, Wrap returns nil,
// which lets call sites write `return apxerr.Wrap(op, code, err)` unconditionally
// inside a function that only reaches that line on error.
func Wrap(op string, code Code, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Cause: cause}
}

// Is reports whether err (or something it wraps) carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == code
}
