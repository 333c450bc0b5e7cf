package esplora

import (
	"context"
)

// BlockingTransport performs each exchange on the calling goroutine. Once a
// call has started it runs to completion or until the configured request
// timeout fires; cancelling the caller's context mid-call has no effect.
type BlockingTransport struct {
	core *httpTransport
}

// A compile time check to ensure BlockingTransport implements Transport.
var _ Transport = (*BlockingTransport)(nil)

// NewBlockingTransport creates a blocking transport for the given config.
func NewBlockingTransport(cfg *Config) (*BlockingTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	core, err := newHTTPTransport(copyConfig(cfg))
	if err != nil {
		return nil, err
	}

	return &BlockingTransport{core: core}, nil
}

// Send performs the exchange. A context that is already done is reported
// before any I/O starts.
func (b *BlockingTransport) Send(ctx context.Context, req *Request) (
	*Response, error) {

	if err := ctx.Err(); err != nil {
		return nil, &TransportError{
			Method: req.Method,
			URL:    b.core.endpointURL(req),
			Err:    err,
		}
	}

	return b.core.do(context.WithoutCancel(ctx), req)
}

// Close releases idle pooled connections.
func (b *BlockingTransport) Close() {
	b.core.closeIdle()
}
