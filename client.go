package esplora

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNotAsync is returned by Async for clients built on a blocking
// transport.
var ErrNotAsync = errors.New("client does not use an async transport")

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithMetrics records every request in the given collector.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *Client) {
		c.dispatcher.metrics = metrics
	}
}

// WithClock sets the clock used for latency measurement.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) {
		c.dispatcher.clock = clk
	}
}

// Client is an Esplora API client. Its scheduling model is fixed by the
// transport it was built with. A Client is safe for concurrent use.
type Client struct {
	cfg *Config

	dispatcher *dispatcher

	headers *headerCache

	// async is set for clients built on an AsyncTransport.
	async *AsyncTransport
}

// NewClient creates a client on top of an existing transport. The config is
// copied; later changes to it have no effect on the client.
func NewClient(cfg *Config, transport Transport,
	opts ...ClientOption) (*Client, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = copyConfig(cfg)

	c := &Client{
		cfg: cfg,
		dispatcher: &dispatcher{
			transport: transport,
			clock:     clock.NewDefaultClock(),
		},
		headers: newHeaderCache(cfg.HeaderCacheSize),
	}
	if async, ok := transport.(*AsyncTransport); ok {
		c.async = async
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewBlockingClient creates a client whose calls run on the calling
// goroutine.
func NewBlockingClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	transport, err := NewBlockingTransport(cfg)
	if err != nil {
		return nil, err
	}

	return NewClient(cfg, transport, opts...)
}

// NewAsyncClient creates a client whose calls run on goroutines owned by the
// client and return as soon as the caller's context is done. Stop must be
// called to release it.
func NewAsyncClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	transport, err := NewAsyncTransport(cfg)
	if err != nil {
		return nil, err
	}

	return NewClient(cfg, transport, opts...)
}

// URL returns the configured base URL.
func (c *Client) URL() string {
	return c.cfg.URL
}

// Stop cancels in-flight calls of an async client and waits for them. It is
// a no-op for blocking clients.
func (c *Client) Stop() {
	if c.async != nil {
		c.async.Stop()
	}
}

// Async runs call on the client's async transport and returns its future.
// It fails with ErrNotAsync for blocking clients.
func Async[T any](ctx context.Context, c *Client,
	call func(context.Context, *Client) (T, error)) *Future[T] {

	promise := NewPromise[T]()
	if c.async == nil {
		promise.Complete(fn.Err[T](ErrNotAsync))
		return promise.Future()
	}

	started := c.async.gm.Go(ctx, func(ctx context.Context) {
		promise.Complete(resultOf(call(ctx, c)))
	})
	if !started {
		err := ctx.Err()
		if err == nil {
			err = ErrTransportStopped
		}
		promise.Complete(fn.Err[T](err))
	}

	return promise.Future()
}
