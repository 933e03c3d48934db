package gateway

import (
	"fmt"
	"net/http"
)

// TransportError reports that a gateway call failed before the gateway
// produced a meaningful domain response: a network-level failure or an
// HTTP status outside the 2xx family. The raw diagnostic context is
// attached for logging; the card payload never is.
type TransportError struct {
	URL     string
	Status  int
	Headers http.Header
	Body    map[string]any
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("gateway: request to %s returned status %d", e.URL, e.Status)
}

// Unwrap exposes the underlying transport error.
func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError reports that the gateway understood the request but
// declined it. Status and Message come from the gateway response body.
type RejectionError struct {
	HTTPStatus int
	Status     string
	Message    string
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("gateway: payment rejected: status %s: %s", e.Status, e.Message)
}
