package esplora

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// endpoint describes one API call before it is handed to the transport.
type endpoint struct {
	// name labels the call in logs and metrics.
	name string

	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

// get returns a GET endpoint for the given path segments.
func get(name string, segments ...string) *endpoint {
	return &endpoint{
		name:   name,
		method: http.MethodGet,
		path:   endpointPath(segments...),
	}
}

// post returns a POST endpoint with a text body.
func post(name string, body []byte, segments ...string) *endpoint {
	return &endpoint{
		name:        name,
		method:      http.MethodPost,
		path:        endpointPath(segments...),
		body:        body,
		contentType: "text/plain",
	}
}

// withQuery attaches query parameters to the endpoint.
func (e *endpoint) withQuery(query url.Values) *endpoint {
	e.query = query
	return e
}

// request converts the endpoint into a transport request.
func (e *endpoint) request() *Request {
	return &Request{
		Method:      e.method,
		Path:        e.path,
		Query:       e.query,
		Body:        e.body,
		ContentType: e.contentType,
	}
}

// dispatcher is the single place where responses are mapped to results. It
// applies the status policy shared by every endpoint: 2xx is decoded, 404 is
// absence for existence queries, and every other status is returned as an
// *HTTPStatusError carrying the body unchanged.
type dispatcher struct {
	transport Transport
	metrics   *Metrics
	clock     clock.Clock
}

// roundTrip sends the endpoint and records the exchange.
func (d *dispatcher) roundTrip(ctx context.Context, ep *endpoint) (*Response,
	error) {

	logCtx := btclog.WithCtx(ctx,
		slog.String("endpoint", ep.name),
		slog.String("method", ep.method),
		slog.String("path", ep.path),
	)

	start := d.clock.Now()
	resp, err := d.transport.Send(ctx, ep.request())
	elapsed := d.clock.Now().Sub(start)

	if err != nil {
		d.metrics.observeRequest(ep.name, 0, elapsed)
		log.DebugS(logCtx, "Esplora request failed",
			slog.Duration("elapsed", elapsed),
			slog.String("err", err.Error()))

		return nil, err
	}

	d.metrics.observeRequest(ep.name, resp.StatusCode, elapsed)
	log.DebugS(logCtx, "Esplora request completed",
		slog.Int("status", resp.StatusCode),
		slog.Int("body_len", len(resp.Body)),
		slog.Duration("elapsed", elapsed))

	return resp, nil
}

// statusError builds the error for a status the endpoint does not accept.
func statusError(resp *Response) error {
	return &HTTPStatusError{
		Code:   resp.StatusCode,
		Body:   resp.Body,
		Header: resp.Header,
	}
}

// decode runs the decoder and records failures.
func decode[T any](d *dispatcher, ep *endpoint, resp *Response,
	dec decoder[T]) (T, error) {

	val, err := dec(resp.Body)
	if err != nil {
		d.metrics.observeDecodeFailure(ep.name)
		return val, err
	}

	log.Tracef("Decoded %s response: %v", ep.name, spewClosure(val))

	return val, nil
}

// call performs an endpoint whose only accepted outcome is a 2xx response
// decoding to T.
func call[T any](ctx context.Context, d *dispatcher, ep *endpoint,
	dec decoder[T]) (T, error) {

	var zero T

	resp, err := d.roundTrip(ctx, ep)
	if err != nil {
		return zero, err
	}
	if !resp.IsSuccess() {
		return zero, statusError(resp)
	}

	return decode(d, ep, resp, dec)
}

// callOpt performs an existence query: a 404 response is reported as None.
func callOpt[T any](ctx context.Context, d *dispatcher, ep *endpoint,
	dec decoder[T]) (fn.Option[T], error) {

	resp, err := d.roundTrip(ctx, ep)
	if err != nil {
		return fn.None[T](), err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fn.None[T](), nil

	case !resp.IsSuccess():
		return fn.None[T](), statusError(resp)
	}

	val, err := decode(d, ep, resp, dec)
	if err != nil {
		return fn.None[T](), err
	}

	return fn.Some(val), nil
}

// callUnit performs an endpoint whose success carries no value. The body of a
// 2xx response is ignored and may be empty.
func callUnit(ctx context.Context, d *dispatcher, ep *endpoint) error {
	resp, err := d.roundTrip(ctx, ep)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}

	return nil
}
