package daybetter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedStatus is returned for any non-200 HTTP response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrMalformedResponse is returned when a body cannot be decoded or lacks required fields.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRejected is returned when the service answers with a failure code.
	ErrRejected = errors.New("request rejected")
)

// StatusError carries the HTTP status and a snippet of the body.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
