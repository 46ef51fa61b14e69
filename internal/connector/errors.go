package connector

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConnectionFailed Kind = "CONNECTION_FAILED"
	KindAuthFailed       Kind = "AUTH_FAILED"
	KindRemoteError      Kind = "REMOTE_ERROR"
	KindTimeout          Kind = "TIMEOUT"
)

// Error classifies connector failures so callers can distinguish network,
// authentication, remote and timeout conditions without parsing messages.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func WrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the error kind, or empty when err is not a connector error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
