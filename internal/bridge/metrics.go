package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var fetchDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds the Prometheus instruments for one bridge
type Metrics struct {
	FetchTotal         *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
	EventsTotal        *prometheus.CounterVec
	EventsQueued       prometheus.Gauge
	ListenerPanics     prometheus.Counter
	Listeners          prometheus.Gauge
	PendingRequests    prometheus.Gauge
	NotificationsTotal *prometheus.CounterVec
}

// Outcome labels for FetchTotal
const (
	outcomeOK        = "ok"
	outcomeBusiness  = "business_error"
	outcomeTransport = "transport_error"
)

// InitMetrics creates and registers the bridge instruments
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizbridge_fetch_total",
			Help: "Total number of fetch calls by service and outcome.",
		}, []string{"service", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bizbridge_fetch_duration_seconds",
			Help:    "Round trip time of fetch calls in seconds.",
			Buckets: fetchDurationBuckets,
		}, []string{"service"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizbridge_events_total",
			Help: "Pushed events by outcome (delivered or dropped).",
		}, []string{"outcome"}),
		EventsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bizbridge_events_queued",
			Help: "Pushed events waiting for listener dispatch.",
		}),
		ListenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bizbridge_listener_panics_total",
			Help: "Listener callbacks that panicked during dispatch.",
		}),
		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bizbridge_listeners",
			Help: "Currently registered event listeners.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bizbridge_pending_requests",
			Help: "Requests waiting for a reply.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizbridge_notifications_total",
			Help: "Error notifications shown by severity.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDuration,
		m.EventsTotal,
		m.EventsQueued,
		m.ListenerPanics,
		m.Listeners,
		m.PendingRequests,
		m.NotificationsTotal,
	)

	return m
}
