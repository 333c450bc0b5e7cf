//go:build notor

package esplora

import (
	"context"
	"errors"
	"net"
	"time"
)

// errTorDisabled is returned when Tor routing is configured in a build
// without Tor support.
var errTorDisabled = errors.New("tor support not compiled in, rebuild " +
	"without the notor tag")

// torDialer always fails in builds without Tor support.
func torDialer(*Tor, time.Duration) (func(context.Context, string,
	string) (net.Conn, error), error) {

	return nil, errTorDisabled
}
