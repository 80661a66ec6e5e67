package clublog

import (
	"fmt"
	"net/http"
)

// HTTPError is returned when ClubLog answers with a non-2xx status code.
//
// A 403 means the account credentials were rejected or the account hit a
// rate limit; callers are expected to stop issuing requests for a while.
type HTTPError struct {
	// Path is the upstream resource path, e.g. "/watch.php".
	Path string

	// Status is the HTTP status code returned by the server.
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("clublog %s: HTTP %d %s", e.Path, e.Status, http.StatusText(e.Status))
}

// StatusCode returns the HTTP status code carried by the error.
func (e *HTTPError) StatusCode() int {
	return e.Status
}

// Forbidden reports whether the server returned 403.
func (e *HTTPError) Forbidden() bool {
	return e.Status == http.StatusForbidden
}

// TransportError wraps network-level failures: DNS resolution, refused
// connections, timeouts and truncated reads. It never carries the request URL
// since the query string contains credentials.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("clublog %s: transport: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a response body does not decode into the
// shape expected for the resource.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("clublog %s: decode: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
