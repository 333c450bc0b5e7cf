//go:build !notor

package esplora

import (
	"context"
	"net"
	"time"

	"github.com/lightningnetwork/lnd/tor"
)

// torDialer returns a dial function that routes every connection through the
// configured Tor SOCKS proxy. Clear net targets go through Tor as well.
func torDialer(cfg *Tor, timeout time.Duration) (func(context.Context,
	string, string) (net.Conn, error), error) {

	socks := cfg.SOCKS
	isolate := cfg.StreamIsolation

	return func(ctx context.Context, _, addr string) (net.Conn, error) {
		connTimeout := timeout
		if deadline, ok := ctx.Deadline(); ok {
			connTimeout = time.Until(deadline)
		}
		if connTimeout <= 0 {
			return nil, context.DeadlineExceeded
		}

		return tor.Dial(addr, socks, isolate, false, connTimeout)
	}, nil
}
