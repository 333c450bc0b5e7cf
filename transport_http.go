package esplora

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxIdleConnsPerHost bounds the keep-alive pool towards the single
	// Esplora host.
	maxIdleConnsPerHost = 16

	// idleConnTimeout closes pooled connections that sat unused.
	idleConnTimeout = 90 * time.Second
)

// httpTransport is the HTTP machinery shared by both transports. It owns the
// connection pool and applies the per-call timeout, the configured headers
// and the redirect policy identically for every request.
type httpTransport struct {
	baseURL   string
	headers   http.Header
	userAgent string
	timeout   time.Duration

	// limiter paces outgoing requests. It is nil when unlimited.
	limiter *rate.Limiter

	client *http.Client
}

// newHTTPTransport builds the shared HTTP core from a validated config.
func newHTTPTransport(cfg *Config) (*httpTransport, error) {
	roundTripper := &http.Transport{
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	switch {
	case cfg.Tor != nil && cfg.Tor.Active:
		dial, err := torDialer(cfg.Tor, cfg.requestTimeout())
		if err != nil {
			return nil, err
		}
		roundTripper.DialContext = dial

	case cfg.Proxy != "":
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		roundTripper.Proxy = http.ProxyURL(proxyURL)

	default:
		dialer := &net.Dialer{
			Timeout:   cfg.requestTimeout(),
			KeepAlive: 30 * time.Second,
		}
		roundTripper.DialContext = dialer.DialContext
	}

	headers := make(http.Header, len(cfg.Headers))
	for name, value := range cfg.Headers {
		headers.Set(name, value)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	// Redirects are surfaced as a status so that every request reaches
	// exactly the configured host.
	noRedirect := func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &httpTransport{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		headers:   headers,
		userAgent: userAgent,
		timeout:   cfg.requestTimeout(),
		limiter:   cfg.limiter(),
		client: &http.Client{
			Transport:     roundTripper,
			CheckRedirect: noRedirect,
		},
	}, nil
}

// endpointURL returns the absolute URL for the request.
func (t *httpTransport) endpointURL(req *Request) string {
	u := t.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	return u
}

// do performs the exchange under the per-call timeout. The timeout covers
// the rate limiter wait and reading the body.
func (t *httpTransport) do(ctx context.Context, req *Request) (*Response,
	error) {

	endpoint := t.endpointURL(req)
	fail := func(err error) (*Response, error) {
		return nil, &TransportError{
			Method: req.Method,
			URL:    endpoint,
			Err:    err,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.waitLimiter(ctx); err != nil {
		return fail(fmt.Errorf("rate limit: %w", err))
	}

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, req.Method, endpoint, body,
	)
	if err != nil {
		return fail(err)
	}

	for name, values := range t.headers {
		httpReq.Header[name] = values
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	if len(req.Body) > 0 && req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("reading response body: %w", err))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// waitLimiter blocks until the rate limiter admits the request. A wait that
// cannot complete before the deadline of ctx fails at once with
// context.DeadlineExceeded.
func (t *httpTransport) waitLimiter(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}

	r := t.limiter.Reserve()
	if !r.OK() {
		return errors.New("request exceeds limiter burst")
	}

	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		r.Cancel()
		return fmt.Errorf("wait of %v exceeds deadline: %w", delay,
			context.DeadlineExceeded)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil

	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// closeIdle drops pooled connections.
func (t *httpTransport) closeIdle() {
	t.client.CloseIdleConnections()
}
