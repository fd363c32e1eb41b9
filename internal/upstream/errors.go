package upstream

import (
	"errors"
	"fmt"
)

// unavailableError signals that the upstream server could not be reached at
// all (connection refused, DNS, timeout). The panel maps it to the
// connection-error page.
type unavailableError struct{ err error }

func (e unavailableError) Error() string { return "upstream unavailable: " + e.err.Error() }
func (e unavailableError) Unwrap() error { return e.err }

// ErrUnavailable wraps a transport-level failure.
func ErrUnavailable(err error) error { return unavailableError{err: err} }

// IsUnavailable reports whether err indicates an unreachable upstream,
// anywhere in its wrap chain.
func IsUnavailable(err error) bool {
	var ue unavailableError
	return errors.As(err, &ue)
}

// rejectedError signals a non-2xx response from the upstream server.
type rejectedError struct {
	status int
	body   string
}

func (e rejectedError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("upstream rejected: status %d", e.status)
	}
	return fmt.Sprintf("upstream rejected: status %d: %s", e.status, e.body)
}

// StatusCode returns the upstream HTTP status.
func (e rejectedError) StatusCode() int { return e.status }

// ErrRejected constructs a rejectedError.
func ErrRejected(status int, body string) error { return rejectedError{status: status, body: body} }

// IsRejected reports whether err indicates an upstream non-2xx response,
// anywhere in its wrap chain.
func IsRejected(err error) bool {
	var re rejectedError
	return errors.As(err, &re)
}
