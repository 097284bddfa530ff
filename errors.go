package session

import (
	"errors"
	"net"

	pkgerrors "github.com/pkg/errors"
)

// errAbortedNet is compared via errors.Is against raw net errors surfaced
// by Stop() tearing down listeners/sockets out from under in-flight reads
// and writes; Go has no literal "operation_aborted" error, net.ErrClosed
// is the closest stdlib equivalent of asio's operation_aborted.
var errAbortedNet = net.ErrClosed

// Code is the custom error category carried by session errors. It leaves
// room for growth beyond the values currently returned.
type Code int32

const (
	// CodeSuccess is the zero value; never surfaced as a real error.
	CodeSuccess Code = 0
	// CodeNotConnected is delivered synchronously through OnError by Post
	// when the session is not in the CONNECTED state.
	CodeNotConnected Code = 1
	// CodeInvalidFrame marks a protocol error: a frame whose declared
	// length is negative or exceeds the configured cap.
	CodeInvalidFrame Code = 2
	// CodeTransport marks a resolve/connect/read/write failure.
	CodeTransport Code = 3
	// CodeAborted marks a close driven by Controller.Stop cancelling
	// in-flight operations.
	CodeAborted Code = 4
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "no_error"
	case CodeNotConnected:
		return "not_connected"
	case CodeInvalidFrame:
		return "invalid_frame"
	case CodeTransport:
		return "transport_error"
	case CodeAborted:
		return "operation_aborted"
	default:
		return "unknown"
	}
}

// Error is the error type delivered through OnError/OnClose. It always
// carries a Code; Cause holds the underlying error and is nil for the
// NotConnected and Aborted sentinels.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, session.NotConnected) style comparisons against
// the sentinel codes below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

// NotConnected is the sentinel compared against via errors.Is to detect a
// Post rejected because the session has not reached CONNECTED.
var NotConnected = &Error{Code: CodeNotConnected}

// Aborted is the sentinel for operation_aborted closes triggered by Stop.
var Aborted = &Error{Code: CodeAborted}

// wrapTransport wraps a raw transport-layer error (resolve/connect/read/
// write failure) with a descriptive message, following the
// errors.Wrap idiom used throughout xtaci-kcptun.
func wrapTransport(cause error, context string) *Error {
	return newError(CodeTransport, pkgerrors.Wrap(cause, context))
}

// IsOperationAborted reports whether err represents a cancellation caused
// by Controller.Stop rather than a genuine transport failure.
func IsOperationAborted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeAborted
	}
	return errors.Is(err, errAbortedNet)
}
