package esplora

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTxNotFound is returned by the NoOpt helpers when the server does
	// not know the requested transaction.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrBlockNotFound is returned by the NoOpt helpers when the server
	// does not know the requested block.
	ErrBlockNotFound = errors.New("block not found")

	// ErrHeaderHeightNotFound is returned when no block exists at the
	// requested height.
	ErrHeaderHeightNotFound = errors.New("no block at height")

	// ErrInvalidHeaderName is returned when a configured header name is
	// not a valid HTTP token.
	ErrInvalidHeaderName = errors.New("invalid http header name")

	// ErrInvalidHeaderValue is returned when a configured header value
	// contains forbidden characters.
	ErrInvalidHeaderValue = errors.New("invalid http header value")

	// ErrTransportStopped is returned for calls issued on an async
	// transport after it has been stopped.
	ErrTransportStopped = errors.New("transport stopped")

	// ErrTxNotInBlock is returned when a transaction is not part of the
	// block it was searched in.
	ErrTxNotInBlock = errors.New("transaction not in block")

	// ErrHeightMismatch is returned when a merkle proof and the status
	// of the same transaction disagree on the confirming block.
	ErrHeightMismatch = errors.New("proof height does not match tx " +
		"status")

	// ErrUnconfirmed is returned when inclusion of an unconfirmed
	// transaction is requested.
	ErrUnconfirmed = errors.New("transaction is unconfirmed")
)

// TransportError is returned when a request could not be completed at the
// transport level: the connection failed, TLS failed, the call timed out or
// it was abandoned by the caller. No HTTP status is available.
type TransportError struct {
	// Method is the HTTP method of the failed request.
	Method string

	// URL is the full URL of the failed request.
	URL string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a deadline.
func (e *TransportError) Timeout() bool {
	var timeout interface{ Timeout() bool }
	if errors.As(e.Err, &timeout) && timeout.Timeout() {
		return true
	}

	return errors.Is(e.Err, context.DeadlineExceeded)
}

// HTTPStatusError is returned when the server answered with a status the
// endpoint does not accept. The body is kept verbatim.
type HTTPStatusError struct {
	// Code is the HTTP status code.
	Code int

	// Body is the unmodified response body.
	Body []byte

	// Header holds the response headers, e.g. Retry-After.
	Header http.Header
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d (%s): %s", e.Code,
		http.StatusText(e.Code), e.Body)
}

// DecodeError is returned when a successful response could not be decoded
// into the expected type.
type DecodeError struct {
	// Kind names the value that was being decoded.
	Kind string

	// Err is the underlying parse failure.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying parse failure.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// newDecodeError wraps err as a DecodeError for the named kind.
func newDecodeError(kind string, err error) error {
	return &DecodeError{Kind: kind, Err: err}
}

// retryableStatus are the status codes a caller may retry.
var retryableStatus = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusServiceUnavailable:  {},
}

// IsRetryable reports whether err is a transport failure or an HTTP status
// that a caller may reasonably retry. The client itself never retries.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return !errors.Is(err, ErrTransportStopped)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		_, ok := retryableStatus[statusErr.Code]
		return ok
	}

	return false
}
