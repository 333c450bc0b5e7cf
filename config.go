package esplora

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/lightningnetwork/lnd/tor"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout is the default timeout for a single HTTP
	// exchange with the Esplora API, covering connect, TLS, request and
	// response body.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultPollInterval is the default interval at which the tip
	// notifier polls for new blocks.
	DefaultPollInterval = 10 * time.Second

	// DefaultHeaderCacheSize is the default number of block headers kept
	// in memory. Headers are immutable for a given hash so they never
	// need to be invalidated.
	DefaultHeaderCacheSize = 2016

	// DefaultUserAgent is sent with every request unless overridden.
	DefaultUserAgent = "esplora-go"
)

var (
	// ErrMissingURL is returned when no base URL is configured.
	ErrMissingURL = errors.New("esplora url must be set")

	// ErrOnionWithoutTor is returned when an onion URL is configured
	// without a Tor SOCKS proxy to reach it.
	ErrOnionWithoutTor = errors.New("onion url requires tor.socks")
)

// Tor holds the options for routing requests through Tor.
//
//nolint:lll
type Tor struct {
	Active          bool   `long:"active" description:"Route all requests through Tor"`
	SOCKS           string `long:"socks" description:"The host:port that Tor's exposed SOCKS5 proxy is listening on"`
	StreamIsolation bool   `long:"streamisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection."`
}

// Config holds the configuration of an Esplora client. It is copied by the
// client constructors and never modified afterwards.
//
//nolint:lll
type Config struct {
	// URL is the base URL of the Esplora API to connect to.
	// Examples:
	//   - http://localhost:3002 (local electrs/mempool)
	//   - https://blockstream.info/api (Blockstream mainnet)
	//   - https://mempool.space/testnet/api (mempool.space testnet)
	URL string `long:"url" description:"The base URL of the Esplora API (e.g., http://localhost:3002)"`

	// RequestTimeout bounds every HTTP exchange. Zero selects the
	// default.
	RequestTimeout time.Duration `long:"requesttimeout" description:"Timeout for HTTP requests to the Esplora API."`

	// Proxy is an optional http, https or socks5 proxy URL. It is
	// ignored when Tor is active.
	Proxy string `long:"proxy" description:"Proxy URL (http://, https:// or socks5://) used for all requests"`

	// Tor routes requests through a Tor SOCKS proxy.
	Tor *Tor `group:"Tor" namespace:"tor"`

	// Headers are added to every request.
	Headers map[string]string `long:"header" description:"Extra HTTP header to send with every request, as name:value. May be repeated."`

	// UserAgent is sent as the User-Agent header.
	UserAgent string `long:"useragent" description:"User-Agent sent with every request"`

	// HeaderCacheSize is the number of block headers cached in memory.
	// Zero disables the cache.
	HeaderCacheSize uint64 `long:"headercachesize" description:"Number of block headers to cache in memory, 0 to disable"`

	// PollInterval is the interval at which the tip notifier polls for
	// new blocks. Since Esplora is HTTP-only, we need to poll rather
	// than subscribe.
	PollInterval time.Duration `long:"pollinterval" description:"Interval at which to poll for new blocks."`

	// RateLimit caps the number of requests per second sent by a
	// client. Public Esplora instances throttle aggressively. Zero means
	// unlimited.
	RateLimit float64 `long:"ratelimit" description:"Maximum number of requests per second, 0 for unlimited"`

	// RateBurst is the number of requests that may be sent back to back
	// before RateLimit applies. Values below one are treated as one.
	RateBurst int `long:"rateburst" description:"Number of requests allowed in a burst above the rate limit"`
}

// DefaultConfig returns a new config with default values populated. The URL
// must still be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout:  DefaultRequestTimeout,
		Tor:             &Tor{},
		UserAgent:       DefaultUserAgent,
		HeaderCacheSize: DefaultHeaderCacheSize,
		PollInterval:    DefaultPollInterval,
	}
}

// Validate checks the config for consistency.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}

	base, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid esplora url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("unsupported esplora url scheme %q",
			base.Scheme)
	}
	if base.Host == "" {
		return fmt.Errorf("esplora url %q has no host", c.URL)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("negative request timeout %v",
			c.RequestTimeout)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("negative rate limit %v", c.RateLimit)
	}

	torActive := c.Tor != nil && c.Tor.Active
	if torActive {
		if _, _, err := net.SplitHostPort(c.Tor.SOCKS); err != nil {
			return fmt.Errorf("invalid tor.socks address %q: %w",
				c.Tor.SOCKS, err)
		}
	}

	if tor.IsOnionHost(base.Hostname()) && !torActive {
		return ErrOnionWithoutTor
	}

	if c.Proxy != "" && !torActive {
		proxy, err := url.Parse(c.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy url: %w", err)
		}

		switch proxy.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return fmt.Errorf("unsupported proxy scheme %q",
				proxy.Scheme)
		}
	}

	for name, value := range c.Headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("%w: %q", ErrInvalidHeaderName, name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return fmt.Errorf("%w: %q", ErrInvalidHeaderValue,
				value)
		}
	}

	return nil
}

// requestTimeout returns the configured timeout or the default.
func (c *Config) requestTimeout() time.Duration {
	if c.RequestTimeout == 0 {
		return DefaultRequestTimeout
	}

	return c.RequestTimeout
}

// limiter returns the request rate limiter for the config, or nil when
// requests are not limited.
func (c *Config) limiter() *rate.Limiter {
	if c.RateLimit == 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(c.RateLimit), max(c.RateBurst, 1))
}

// copyConfig returns a deep copy of cfg so later caller mutations do not
// reach the client.
func copyConfig(cfg *Config) *Config {
	cp := *cfg
	if cfg.Tor != nil {
		torCfg := *cfg.Tor
		cp.Tor = &torCfg
	}
	if cfg.Headers != nil {
		cp.Headers = make(map[string]string, len(cfg.Headers))
		for name, value := range cfg.Headers {
			cp.Headers[name] = value
		}
	}

	return &cp
}
