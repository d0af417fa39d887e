package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	joins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "queue_joins_total",
			Help:      "Successful queue joins by service.",
		},
		[]string{"service"},
	)

	calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "queue_calls_total",
			Help:      "Entries called by service.",
		},
		[]string{"service"},
	)

	served = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "queue_served_total",
			Help:      "Entries served by service.",
		},
		[]string{"service"},
	)

	removed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "queue_removed_total",
			Help:      "Entries removed by service and reason.",
		},
		[]string{"service", "reason"},
	)

	depth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "turnero",
			Name:      "queue_depth",
			Help:      "Active entries (waiting + called) by service.",
		},
		[]string{"service"},
	)

	waitMinutes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "turnero",
			Name:      "queue_wait_minutes",
			Help:      "Observed wait from join to served, in minutes.",
			Buckets:   []float64{1, 5, 10, 15, 30, 45, 60, 90, 120},
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(joins, calls, served, removed, depth, waitMinutes, httpRequests)
	})
}

func IncJoined(serviceID int64) { joins.WithLabelValues(label(serviceID)).Inc() }
func IncCalled(serviceID int64) { calls.WithLabelValues(label(serviceID)).Inc() }
func IncServed(serviceID int64) { served.WithLabelValues(label(serviceID)).Inc() }

func IncRemoved(serviceID int64, reason string) {
	removed.WithLabelValues(label(serviceID), reason).Inc()
}

// SetQueueDepth records the current active-entry count for a service.
func SetQueueDepth(serviceID int64, n int) {
	depth.WithLabelValues(label(serviceID)).Set(float64(n))
}

// ObserveWait records a completed wait in minutes.
func ObserveWait(minutes float64) { waitMinutes.Observe(minutes) }

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) { httpRequests.WithLabelValues(endpoint).Inc() }

func label(serviceID int64) string { return strconv.FormatInt(serviceID, 10) }
