package esplora

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// outcomeTransport labels requests that failed before a status was
	// received.
	outcomeTransport = "transport_error"
)

// Metrics collects per endpoint request counters and latencies. It
// implements prometheus.Collector; register it with the registry of choice.
// A nil *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// A compile time check to ensure Metrics implements prometheus.Collector.
var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics creates the collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "esplora",
				Name:      "requests_total",
				Help: "Requests sent to the Esplora API by " +
					"endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		),
		decodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "esplora",
				Name:      "decode_failures_total",
				Help: "Successful responses that could " +
					"not be decoded, by endpoint.",
			},
			[]string{"endpoint"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "esplora",
				Name:      "request_duration_seconds",
				Help: "Esplora request latency by " +
					"endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.requests.Describe(ch)
	m.decodeFailures.Describe(ch)
	m.latency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.requests.Collect(ch)
	m.decodeFailures.Collect(ch)
	m.latency.Collect(ch)
}

// observeRequest records a finished exchange. A status of zero means the
// transport failed.
func (m *Metrics) observeRequest(endpoint string, status int,
	elapsed time.Duration) {

	if m == nil {
		return
	}

	code := outcomeTransport
	if status != 0 {
		code = strconv.Itoa(status)
	}

	m.requests.WithLabelValues(endpoint, code).Inc()
	m.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// observeDecodeFailure records a response that failed to decode.
func (m *Metrics) observeDecodeFailure(endpoint string) {
	if m == nil {
		return
	}

	m.decodeFailures.WithLabelValues(endpoint).Inc()
}
