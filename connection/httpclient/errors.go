package httpclient

import "fmt"

// StatusError means the exchange completed but the server answered with something other
// than 200
type StatusError struct {
	Path       string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s failed with status %s", e.Path, e.Status)
}

func (e *StatusError) Unwrap() error { return nil }

// TransportError means we never got a usable response: dial, TLS, timeout or body read
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("POST %s failed: %s", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
