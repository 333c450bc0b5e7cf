package esplora

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newHangingServer returns a server that never answers until the test ends.
func newHangingServer(t *testing.T) *httptest.Server {
	t.Helper()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	return srv
}

// newTransport builds a transport of the requested model.
func newTransport(t *testing.T, cfg *Config, async bool) Transport {
	t.Helper()

	if async {
		transport, err := NewAsyncTransport(cfg)
		require.NoError(t, err)
		t.Cleanup(transport.Stop)

		return transport
	}

	transport, err := NewBlockingTransport(cfg)
	require.NoError(t, err)
	t.Cleanup(transport.Close)

	return transport
}

// TestTransportTimeout asserts that a server that never responds yields a
// transport error flagged as timeout under both scheduling models.
func TestTransportTimeout(t *testing.T) {
	t.Parallel()

	for _, model := range transportModels {
		model := model
		t.Run(model.name, func(t *testing.T) {
			t.Parallel()

			srv := newHangingServer(t)
			cfg := testConfig(srv.URL)
			cfg.RequestTimeout = 200 * time.Millisecond

			transport := newTransport(t, cfg, model.async)

			start := time.Now()
			resp, err := transport.Send(
				context.Background(), &Request{
					Method: http.MethodGet,
					Path:   "/blocks/tip/height",
				},
			)
			require.Nil(t, resp)

			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			require.True(t, transportErr.Timeout())
			require.Equal(t, http.MethodGet, transportErr.Method)
			require.Equal(
				t, srv.URL+"/blocks/tip/height",
				transportErr.URL,
			)

			// The call waits out the full timeout and no longer.
			elapsed := time.Since(start)
			require.GreaterOrEqual(t, elapsed, cfg.RequestTimeout)
			require.Less(t, elapsed, 5*time.Second)

			// A timeout is a failed exchange, never a status.
			var statusErr *HTTPStatusError
			require.False(t, errors.As(err, &statusErr))
			require.True(t, IsRetryable(err))
		})
	}
}

// TestTransportConnectionRefused asserts that an unreachable server is a
// transport error.
func TestTransportConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	for _, model := range transportModels {
		transport := newTransport(t, testConfig(addr), model.async)

		_, err := transport.Send(context.Background(), &Request{
			Method: http.MethodGet,
			Path:   "/blocks/tip/hash",
		})

		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr, model.name)
		require.False(t, transportErr.Timeout(), model.name)
	}
}

// TestTransportRateLimit asserts that requests are paced by the configured
// rate and that a caller whose deadline cannot accommodate the wait fails
// without reaching the server.
func TestTransportRateLimit(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeEsplora(t)
	fake.set(http.MethodGet, "/blocks/tip/height", http.StatusOK, "1")

	req := &Request{Method: http.MethodGet, Path: "/blocks/tip/height"}

	cfg := testConfig(srv.URL)
	cfg.RateLimit = 20
	cfg.RateBurst = 1
	blocking := newTransport(t, cfg, false)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := blocking.Send(context.Background(), req)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	require.Equal(t, 3, fake.count(http.MethodGet, "/blocks/tip/height"))

	cfg = testConfig(srv.URL)
	cfg.RateLimit = 1
	async := newTransport(t, cfg, true)

	_, err := async.Send(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(
		context.Background(), 100*time.Millisecond,
	)
	defer cancel()

	_, err = async.Send(ctx, req)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 4, fake.count(http.MethodGet, "/blocks/tip/height"))
}

// TestTransportRateLimitTimeout asserts that a rate limiter wait longer
// than the request timeout fails as a timeout under both scheduling models
// instead of blocking until a token is available.
func TestTransportRateLimitTimeout(t *testing.T) {
	t.Parallel()

	for _, model := range transportModels {
		model := model
		t.Run(model.name, func(t *testing.T) {
			t.Parallel()

			fake, srv := newFakeEsplora(t)
			fake.set(
				http.MethodGet, "/blocks/tip/height",
				http.StatusOK, "1",
			)

			cfg := testConfig(srv.URL)
			cfg.RateLimit = 0.5
			cfg.RateBurst = 1
			cfg.RequestTimeout = 200 * time.Millisecond
			transport := newTransport(t, cfg, model.async)

			req := &Request{
				Method: http.MethodGet,
				Path:   "/blocks/tip/height",
			}
			_, err := transport.Send(context.Background(), req)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(
				context.Background(), 100*time.Millisecond,
			)
			defer cancel()

			start := time.Now()
			resp, err := transport.Send(ctx, req)
			require.Nil(t, resp)
			require.Less(t, time.Since(start), time.Second)

			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			require.True(t, transportErr.Timeout())
			tipCalls := fake.count(
				http.MethodGet, "/blocks/tip/height",
			)
			require.Equal(t, 1, tipCalls)
		})
	}
}

// TestTransportRequestShape asserts that the configured headers, the user
// agent, the content type and the sorted query reach the server.
func TestTransportRequestShape(t *testing.T) {
	t.Parallel()

	for _, model := range transportModels {
		model := model
		t.Run(model.name, func(t *testing.T) {
			t.Parallel()

			fake, srv := newFakeEsplora(t)
			fake.set(http.MethodPost, "/txs/package", 200, "{}")

			cfg := testConfig(srv.URL + "/")
			cfg.UserAgent = "esplora-test/1.0"
			cfg.Headers = map[string]string{
				"Authorization": "Bearer secret",
			}
			transport := newTransport(t, cfg, model.async)

			resp, err := transport.Send(
				context.Background(), &Request{
					Method: http.MethodPost,
					Path:   "/txs/package",
					Query: url.Values{
						"maxfeerate":    {"0.1"},
						"maxburnamount": {"0"},
					},
					Body:        []byte(`["00"]`),
					ContentType: "application/json",
				},
			)
			require.NoError(t, err)
			require.Equal(t, 200, resp.StatusCode)
			require.Equal(t, []byte("{}"), resp.Body)

			reqs := fake.recorded()
			require.Len(t, reqs, 1)

			req := reqs[0]
			require.Equal(t, "/txs/package", req.path)
			require.Equal(
				t, "maxburnamount=0&maxfeerate=0.1",
				req.rawQuery,
			)
			require.Equal(
				t, "esplora-test/1.0",
				req.header.Get("User-Agent"),
			)
			require.Equal(
				t, "Bearer secret",
				req.header.Get("Authorization"),
			)
			require.Equal(
				t, "application/json",
				req.header.Get("Content-Type"),
			)
			require.Equal(t, []byte(`["00"]`), req.body)
		})
	}
}

// TestTransportNoRedirect asserts that redirects are returned as a status
// instead of being followed.
func TestTransportNoRedirect(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeEsplora(t)
	fake.setWithHeader(
		http.MethodGet, "/blocks/tip/hash", http.StatusFound, "",
		map[string]string{"Location": "/elsewhere"},
	)

	for _, model := range transportModels {
		transport := newTransport(t, testConfig(srv.URL), model.async)

		resp, err := transport.Send(context.Background(), &Request{
			Method: http.MethodGet,
			Path:   "/blocks/tip/hash",
		})
		require.NoError(t, err, model.name)
		require.Equal(t, http.StatusFound, resp.StatusCode, model.name)
		require.False(t, resp.IsSuccess(), model.name)
	}

	require.Zero(t, fake.count(http.MethodGet, "/elsewhere"))
}

// slowServer answers every request after the given delay.
func slowServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}

			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "840000")
		},
	))
	t.Cleanup(srv.Close)

	return srv
}

// TestBlockingIgnoresCancel asserts that a blocking call runs to completion
// even if the caller cancels mid-call.
func TestBlockingIgnoresCancel(t *testing.T) {
	t.Parallel()

	srv := slowServer(t, 300*time.Millisecond)
	transport := newTransport(t, testConfig(srv.URL), false)

	ctx, cancel := context.WithTimeout(
		context.Background(), 50*time.Millisecond,
	)
	defer cancel()

	resp, err := transport.Send(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/blocks/tip/height",
	})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "840000", string(resp.Body))
	require.Equal(t, "text/plain", resp.ContentType())
}

// TestBlockingRejectsDoneContext asserts that no I/O is attempted with a
// context that is already done.
func TestBlockingRejectsDoneContext(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeEsplora(t)
	transport := newTransport(t, testConfig(srv.URL), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transport.Send(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/blocks/tip/height",
	})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fake.recorded())
}

// TestAsyncAbandon asserts that an async call returns as soon as the
// caller's context is done, long before the server would answer.
func TestAsyncAbandon(t *testing.T) {
	t.Parallel()

	srv := newHangingServer(t)
	transport := newTransport(t, testConfig(srv.URL), true)

	ctx, cancel := context.WithTimeout(
		context.Background(), 100*time.Millisecond,
	)
	defer cancel()

	start := time.Now()
	_, err := transport.Send(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/blocks/tip/height",
	})
	require.Less(t, time.Since(start), 4*time.Second)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, transportErr.Timeout())
}

// TestAsyncSendAsync asserts that futures resolve with the response.
func TestAsyncSendAsync(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeEsplora(t)
	fake.set(http.MethodGet, "/blocks/tip/height", 200, "840000")

	transport, err := NewAsyncTransport(testConfig(srv.URL))
	require.NoError(t, err)
	t.Cleanup(transport.Stop)

	futures := make([]*Future[*Response], 0, 5)
	for i := 0; i < 5; i++ {
		futures = append(futures, transport.SendAsync(
			context.Background(), &Request{
				Method: http.MethodGet,
				Path:   "/blocks/tip/height",
			},
		))
	}

	for _, future := range futures {
		resp, err := future.Await(context.Background()).Unpack()
		require.NoError(t, err)
		require.Equal(t, "840000", string(resp.Body))

		select {
		case <-future.Done():
		default:
			t.Fatal("future not done after await")
		}
	}

	require.Equal(t, 5, fake.count(http.MethodGet, "/blocks/tip/height"))
}

// TestAsyncStopped asserts that calls on a stopped transport fail without
// reaching the server.
func TestAsyncStopped(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeEsplora(t)

	transport, err := NewAsyncTransport(testConfig(srv.URL))
	require.NoError(t, err)
	transport.Stop()

	_, err = transport.Send(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/blocks/tip/height",
	})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, ErrTransportStopped)
	require.False(t, IsRetryable(err))
	require.Empty(t, fake.recorded())
}

// TestPromiseCompletesOnce asserts that only the first result is kept.
func TestPromiseCompletesOnce(t *testing.T) {
	t.Parallel()

	promise := NewPromise[int]()
	future := promise.Future()

	ctx, cancel := context.WithTimeout(
		context.Background(), 10*time.Millisecond,
	)
	defer cancel()
	_, err := future.Await(ctx).Unpack()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.True(t, promise.Complete(resultOf(1, nil)))
	require.False(t, promise.Complete(resultOf(2, nil)))

	val, err := future.Await(context.Background()).Unpack()
	require.NoError(t, err)
	require.Equal(t, 1, val)
}
