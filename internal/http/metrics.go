package httpx

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
)

const metricsNamespace = "mcpforge"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		reg := r.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		r.requestTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}))

		r.requestLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}))

		r.rateLimitHits = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"}))

		r.activeStreams = registerOrReuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "active_streams",
			Help:      "Open observation streams by kind",
		}, []string{"kind"}))

		r.waitOutcomes = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "readiness_waits_total",
			Help:      "Readiness waits served over HTTP by outcome",
		}, []string{"outcome"}))

		r.metricsInitialized = true
	})
}

// registerOrReuse registers c, returning the collector already registered
// under the same descriptor when there is one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

// trackStream counts an open stream until the returned func is called.
func (r *Router) trackStream(kind string) func() {
	if !r.metricsInitialized {
		return func() {}
	}
	gauge := r.activeStreams.WithLabelValues(kind)
	gauge.Inc()
	return gauge.Dec
}

func (r *Router) recordWait(err error) {
	if !r.metricsInitialized {
		return
	}
	r.waitOutcomes.WithLabelValues(waitOutcome(err)).Inc()
}

func waitOutcome(err error) string {
	switch {
	case err == nil:
		return "ready"
	case errors.Is(err, mcpserver.ErrServerFailed):
		return "failed"
	case errors.Is(err, mcpserver.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
