package esplora

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// AsyncTransport runs every exchange on a goroutine owned by the transport.
// Callers either receive a Future through SendAsync or wait through Send,
// which returns as soon as the caller's context is done and cancels the
// abandoned exchange.
type AsyncTransport struct {
	core *httpTransport

	gm *fn.GoroutineManager
}

// A compile time check to ensure AsyncTransport implements Transport.
var _ Transport = (*AsyncTransport)(nil)

// NewAsyncTransport creates a cooperative transport for the given config.
// Stop must be called to release it.
func NewAsyncTransport(cfg *Config) (*AsyncTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	core, err := newHTTPTransport(copyConfig(cfg))
	if err != nil {
		return nil, err
	}

	return &AsyncTransport{
		core: core,
		gm:   fn.NewGoroutineManager(),
	}, nil
}

// SendAsync starts the exchange and returns its future. The exchange is
// cancelled when ctx is done or the transport is stopped.
func (a *AsyncTransport) SendAsync(ctx context.Context,
	req *Request) *Future[*Response] {

	promise := NewPromise[*Response]()

	started := a.gm.Go(ctx, func(ctx context.Context) {
		promise.Complete(resultOf(a.core.do(ctx, req)))
	})
	if !started {
		err := ctx.Err()
		if err == nil {
			err = ErrTransportStopped
		}
		promise.Complete(fn.Err[*Response](&TransportError{
			Method: req.Method,
			URL:    a.core.endpointURL(req),
			Err:    err,
		}))
	}

	return promise.Future()
}

// Send performs the exchange and waits for it. If ctx is done first the
// exchange is abandoned and a *TransportError wrapping the context error is
// returned.
func (a *AsyncTransport) Send(ctx context.Context, req *Request) (*Response,
	error) {

	resp, err := a.SendAsync(ctx, req).Await(ctx).Unpack()

	var transportErr *TransportError
	if err != nil && !errors.As(err, &transportErr) {
		return nil, &TransportError{
			Method: req.Method,
			URL:    a.core.endpointURL(req),
			Err:    err,
		}
	}

	return resp, err
}

// Stop cancels all in-flight exchanges and waits for them to return. Later
// calls fail with ErrTransportStopped.
func (a *AsyncTransport) Stop() {
	a.gm.Stop()
	a.core.closeIdle()
}
