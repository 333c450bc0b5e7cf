package esplora

import (
	"context"
	"mime"
	"net/http"
	"net/url"
)

// Request is a single HTTP exchange as seen by a Transport. Path is relative
// to the configured base URL and already escaped.
type Request struct {
	// Method is the HTTP method.
	Method string

	// Path is the escaped path below the base URL, starting with a
	// slash.
	Path string

	// Query holds the query parameters. They are encoded with sorted
	// keys.
	Query url.Values

	// Body is the optional request body.
	Body []byte

	// ContentType is sent with a non-empty body.
	ContentType string
}

// Response is a normalized HTTP response. The body has been read in full.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the full response body.
	Body []byte
}

// ContentType returns the media type of the response, without parameters.
func (r *Response) ContentType() string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}

	return mediaType
}

// IsSuccess reports whether the status is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport sends a request and returns the normalized response. Any status
// code is a successful exchange; only failures to complete the exchange are
// returned as errors, always as *TransportError.
type Transport interface {
	// Send performs the exchange.
	Send(ctx context.Context, req *Request) (*Response, error)
}
