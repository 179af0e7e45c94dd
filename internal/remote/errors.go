package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingRemoteID reports an update or delete whose record has no remote
// id yet, typically because its create has not been replayed.
var ErrMissingRemoteID = errors.New("record has no remote id")

// Error describes a failed remote request.
type Error struct {
	Method string
	URL    string
	// Status is zero when no response was received.
	Status    int
	Body      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether a retry of the same request may succeed.
func (e *Error) Transient() bool { return e.Retryable }

// IsRetryable reports whether err is a remote failure worth requeueing.
func IsRetryable(err error) bool {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Retryable
	}
	return false
}

func retryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
