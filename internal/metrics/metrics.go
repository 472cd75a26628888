// Package metrics exposes bridge telemetry through the default Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/hostbridge/schema"
)

const namespace = "hostbridge"

// UnknownMethod is the label recorded for methods without a handler.
const UnknownMethod = "unknown"

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of open bridge sessions.",
	})
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Sessions opened, by transport.",
	}, []string{"transport"})
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Commands answered, by method and envelope status.",
	}, []string{"method", "status"})
	dispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Work items waiting for the host thread.",
	})
	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent executing work on the host thread.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)

// SessionOpened records a new session.
func SessionOpened(kind schema.TransportKind) {
	sessionsActive.Inc()
	sessionsTotal.WithLabelValues(string(kind)).Inc()
}

// SessionClosed records a session leaving the live set.
func SessionClosed() {
	sessionsActive.Dec()
}

// CommandAnswered records one response envelope.
func CommandAnswered(method string, status string) {
	if method == "" {
		method = UnknownMethod
	}
	commandsTotal.WithLabelValues(method, status).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DispatchObserver feeds dispatcher telemetry into the queue depth gauge and
// the duration histogram.
type DispatchObserver struct{}

// QueueDepth sets the queue depth gauge.
func (DispatchObserver) QueueDepth(depth int) {
	dispatchQueueDepth.Set(float64(depth))
}

// WorkDone observes one host-thread execution.
func (DispatchObserver) WorkDone(elapsed time.Duration) {
	dispatchDuration.Observe(elapsed.Seconds())
}
