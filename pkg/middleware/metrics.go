package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ideaspaper/reqkit/pkg/transport"
)

// Collector records exchange metrics both to Prometheus and to an in-process
// snapshot.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec

	mu            sync.Mutex
	count         int64
	totalDuration time.Duration
	latency       *hdrhistogram.Histogram
}

// Latencies are tracked in microseconds between 1us and 60s.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Snapshot is a point-in-time view of a Collector.
type Snapshot struct {
	RequestCount        int64
	AverageResponseTime time.Duration
	P50                 time.Duration
	P95                 time.Duration
	P99                 time.Duration
}

// NewCollector registers the reqkit metrics with registry. A nil registry
// uses prometheus.DefaultRegisterer.
func NewCollector(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Collector{
		latency: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqkit_requests_total",
				Help: "Total number of HTTP exchanges sent",
			},
			[]string{"method", "status_code", "host"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqkit_request_duration_seconds",
				Help:    "Duration of HTTP exchanges in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "host"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqkit_requests_in_flight",
				Help: "Number of HTTP exchanges currently in flight",
			},
			[]string{"method", "host"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqkit_errors_total",
				Help: "Total number of exchanges that failed without a response",
			},
			[]string{"method", "host"},
		),
	}
}

func (c *Collector) observe(method, host string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	c.requestsTotal.WithLabelValues(method, code, host).Inc()
	c.requestDuration.WithLabelValues(method, code, host).Observe(d.Seconds())

	c.mu.Lock()
	c.count++
	c.totalDuration += d
	_ = c.latency.RecordValue(min(max(d.Microseconds(), minLatencyUs), maxLatencyUs))
	c.mu.Unlock()
}

// Snapshot returns the request count, mean duration and latency
// percentiles so far.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{RequestCount: c.count}
	if c.count > 0 {
		s.AverageResponseTime = c.totalDuration / time.Duration(c.count)
		s.P50 = quantile(c.latency, 50)
		s.P95 = quantile(c.latency, 95)
		s.P99 = quantile(c.latency, 99)
	}
	return s
}

// Metrics records every exchange in c. Failed exchanges are counted with
// status code 0.
func Metrics(c *Collector) Middleware {
	return func(next transport.Transport) transport.Transport {
		if c == nil {
			return next
		}
		return Wrap(next, func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			host := req.URL.Host
			inFlight := c.requestsInFlight.WithLabelValues(req.Method, host)
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			resp, err := next.Send(ctx, req)
			elapsed := time.Since(start)
			if err != nil {
				c.errorsTotal.WithLabelValues(req.Method, host).Inc()
				c.observe(req.Method, host, 0, elapsed)
				return nil, err
			}
			c.observe(req.Method, host, resp.StatusCode, elapsed)
			return resp, nil
		})
	}
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}
