package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported to the initiating side
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NotFound"
	KindFull          ErrorKind = "Full"
	KindTimeout       ErrorKind = "Timeout"
	KindDisconnected  ErrorKind = "Disconnected"
	KindProtocolError ErrorKind = "ProtocolError"
	KindInvalidAction ErrorKind = "InvalidAction"
	KindForbidden     ErrorKind = "Forbidden"
	KindNotReady      ErrorKind = "NotReady"
	KindNotInLobby    ErrorKind = "NotInLobby"
	KindInternal      ErrorKind = "Internal"
)

// Error is a typed failure that maps directly onto an error message
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a typed error
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying error
func WrapError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind alone: errors.Is(err, &Error{Kind: KindFull})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Wire converts the error to its wire form
func (e *Error) Wire() *ErrorMessage {
	return NewErrorMessage(e.Kind, e.Message)
}

// KindOf classifies err, defaulting to KindInternal
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// AsError converts any error into a typed *Error
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return WrapError(KindOf(err), err)
}

// FromWire converts a received error message back into a typed error
func FromWire(m *ErrorMessage) *Error {
	return &Error{Kind: m.Kind, Message: m.Message}
}
