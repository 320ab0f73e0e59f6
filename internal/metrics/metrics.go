// Package metrics exposes coordinator activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/initiative/internal/coordinator"
)

const namespace = "initiative"

// Sync collects drain pass metrics. It implements coordinator.Observer.
type Sync struct {
	Pending    prometheus.Gauge
	Syncing    prometheus.Gauge
	Online     prometheus.Gauge
	Passes     prometheus.Counter
	Delivered  prometheus.Counter
	PassErrors prometheus.Counter
	Duration   prometheus.Histogram
}

var _ coordinator.Observer = (*Sync)(nil)

// NewSync creates the collectors and registers them with reg.
func NewSync(reg prometheus.Registerer) *Sync {
	s := &Sync{
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_operations",
			Help:      "Operations waiting for delivery after the last pass.",
		}),
		Syncing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "in_progress",
			Help:      "1 while a drain pass is running.",
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "online",
			Help:      "1 while the remote is believed reachable.",
		}),
		Passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Drain passes completed.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "delivered_total",
			Help:      "Operations confirmed by the remote.",
		}),
		PassErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_errors_total",
			Help:      "Drain passes that ended with an internal error.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of drain passes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
	}
	reg.MustRegister(s.Pending, s.Syncing, s.Online, s.Passes, s.Delivered, s.PassErrors, s.Duration)
	return s
}

// PassStarted implements coordinator.Observer.
func (s *Sync) PassStarted() {
	s.Syncing.Set(1)
}

// PassFinished implements coordinator.Observer.
func (s *Sync) PassFinished(processed, pending int, elapsed time.Duration, err error) {
	s.Syncing.Set(0)
	s.Passes.Inc()
	s.Delivered.Add(float64(processed))
	s.Pending.Set(float64(pending))
	s.Duration.Observe(elapsed.Seconds())
	if err != nil {
		s.PassErrors.Inc()
	}
}

// OnlineChanged implements coordinator.Observer.
func (s *Sync) OnlineChanged(online bool) {
	if online {
		s.Online.Set(1)
		return
	}
	s.Online.Set(0)
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
