// Package ferrors defines the typed error taxonomy shared by the feed-store
// core: descriptors, the store, IndexDB, and the reader family all return
// errors constructed here so callers can classify failures with KindOf(err)
// instead of matching on message text.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind classifies a feed-store error.
type Kind int

const (
	// Unknown is the zero value; KindOf(err) returns it for errors this
	// package did not produce.
	Unknown Kind = iota
	MissingPath
	BadKey
	BadSecretKey
	BadEncoding
	KeyMismatch
	DuplicateKey
	NotFound
	Closed
	Timeout
	EngineError
	ReaderFailed
	StorageFailure
	SeqOutOfRange
	InvalidRange
	Corrupt
)

func (k Kind) String() string {
	switch k {
	case MissingPath:
		return "MissingPath"
	case BadKey:
		return "BadKey"
	case BadSecretKey:
		return "BadSecretKey"
	case BadEncoding:
		return "BadEncoding"
	case KeyMismatch:
		return "KeyMismatch"
	case DuplicateKey:
		return "DuplicateKey"
	case NotFound:
		return "NotFound"
	case Closed:
		return "Closed"
	case Timeout:
		return "Timeout"
	case EngineError:
		return "EngineError"
	case ReaderFailed:
		return "ReaderFailed"
	case StorageFailure:
		return "StorageFailure"
	case SeqOutOfRange:
		return "SeqOutOfRange"
	case InvalidRange:
		return "InvalidRange"
	case Corrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// Error is a feed-store error tagged with a Kind and an optional wrapped
// cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s += " " + e.Op
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ferrors.New(kind, ...)) to compare by Kind alone,
// ignoring Op/Msg/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrapf constructs an *Error of the given kind wrapping cause with an
// additional formatted message.
func Wrapf(kind Kind, op string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// else Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Sentinel returns a matchable *Error value of the given kind, for use with
// errors.Is(err, ferrors.Sentinel(ferrors.NotFound)).
func Sentinel(kind Kind) error { return &Error{Kind: kind} }
