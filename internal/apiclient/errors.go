package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCanceled matches requests aborted by their caller. Callers that
	// issued the cancellation treat it as a no-op.
	ErrCanceled = errors.New("request canceled")

	// ErrSessionExpired matches 401 responses. The client has already torn
	// down the session and navigated to the login route when it is returned.
	ErrSessionExpired = errors.New("session expired")
)

// APIError is a response with a status >= 400. Status, headers and body are
// passed through unchanged.
type APIError struct {
	Method string
	Path   string
	Status int
	Header http.Header
	Body   []byte
}

func (e *APIError) Error() string {
	if body, ok := e.Envelope(); ok && body.Code != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, body.Code)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrSessionExpired && e.Status == http.StatusUnauthorized
}

// Envelope decodes the standard error body, if the server sent one.
func (e *APIError) Envelope() (*ErrorBody, bool) {
	var env Envelope
	if err := json.Unmarshal(e.Body, &env); err != nil || env.Error == nil {
		return nil, false
	}
	return env.Error, true
}

// Message returns the server's message verbatim, falling back to the
// status text when the body is not an envelope.
func (e *APIError) Message() string {
	if body, ok := e.Envelope(); ok && body.Message != "" {
		return body.Message
	}
	return http.StatusText(e.Status)
}

// NetworkError is a failed attempt that produced no response, including a
// per-attempt timeout.
type NetworkError struct {
	Method  string
	Path    string
	Attempt int
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: attempt %d: %v", e.Method, e.Path, e.Attempt, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type canceledError struct {
	cause error
}

func (e *canceledError) Error() string { return fmt.Sprintf("%v: %v", ErrCanceled, e.cause) }

func (e *canceledError) Is(target error) bool { return target == ErrCanceled }

func (e *canceledError) Unwrap() error { return e.cause }

// IsCanceled reports whether err comes from a caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

func retryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var ae *APIError
	return errors.As(err, &ae) && ae.Status >= http.StatusInternalServerError
}
