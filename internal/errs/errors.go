package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the bridge can report it without inspecting messages
type Kind int

const (
	// InternalError covers unexpected failures inside a filtering step
	InternalError Kind = iota
	// DecodeError means the encoded image could not be decoded
	DecodeError
	// InvalidFormat means a buffer has an unsupported channel count or a size mismatch
	InvalidFormat
)

func (k Kind) String() string {
	switch k {
	case DecodeError:
		return "DecodeError"
	case InvalidFormat:
		return "InvalidFormat"
	case InternalError:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error carries the failing operation and its kind alongside the cause
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: DecodeError}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Decode(op string, format string, args ...interface{}) error {
	return &Error{Kind: DecodeError, Op: op, Err: fmt.Errorf(format, args...)}
}

func Format(op string, format string, args ...interface{}) error {
	return &Error{Kind: InvalidFormat, Op: op, Err: fmt.Errorf(format, args...)}
}

func Internal(op string, format string, args ...interface{}) error {
	return &Error{Kind: InternalError, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in the chain, InternalError otherwise
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// Is reports whether err carries the given kind anywhere in its chain
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, &Error{Kind: kind})
}
