package tunnel

import (
	"errors"
	"fmt"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/httpclient"
)

var (
	ErrNotConnected      = errors.New("tunnel is not connected")
	ErrAlreadyConnected  = errors.New("tunnel is already connected")
	ErrEmptyConnectionId = errors.New("server opened a tunnel without a connection id")
)

// ErrorKind says which part of the tunnel protocol an exchange failed in
type ErrorKind string

const (
	KindConnect   ErrorKind = "connect"
	KindRead      ErrorKind = "read"
	KindWrite     ErrorKind = "write"
	KindClose     ErrorKind = "close"
	KindTransport ErrorKind = "transport"
)

// Error is returned by every Socket operation that performed an exchange. StatusCode is 0
// when no HTTP response was received.
type Error struct {
	Kind       ErrorKind
	Path       string
	StatusCode int
	Err        error
}

func newError(kind ErrorKind, path string, err error) *Error {
	e := &Error{
		Kind: kind,
		Path: path,
		Err:  err,
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		e.StatusCode = statusErr.StatusCode
	}

	return e
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("tunnel %s failed: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("tunnel %s failed on %s: %s", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err, or anything it wraps, is a tunnel *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var tunnelErr *Error
	if errors.As(err, &tunnelErr) {
		return tunnelErr.Kind == kind
	}
	return false
}
