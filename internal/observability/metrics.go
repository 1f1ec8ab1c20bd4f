package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	FetchesTotal     *prometheus.CounterVec // labels: outcome={success,not_modified,failure}
	FetchDuration    prometheus.Histogram
	ItemsIngested    prometheus.Counter
	ItemsDeduped     prometheus.Counter
	ParseErrors      prometheus.Counter
	IncidentsCreated prometheus.Counter
	IncidentsUpdated prometheus.Counter
	IncidentsMerged  prometheus.Counter
	EventsPublished  *prometheus.CounterVec // labels: kind
	EventsDropped    prometheus.Counter
	GeotagResolved   *prometheus.CounterVec // labels: tier
	SourcesInBackoff prometheus.Gauge
	SchedulerRunning prometheus.Gauge
	InFlightFetches  prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchesTotal,
		m.FetchDuration,
		m.ItemsIngested,
		m.ItemsDeduped,
		m.ParseErrors,
		m.IncidentsCreated,
		m.IncidentsUpdated,
		m.IncidentsMerged,
		m.EventsPublished,
		m.EventsDropped,
		m.GeotagResolved,
		m.SourcesInBackoff,
		m.SchedulerRunning,
		m.InFlightFetches,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "fetches_total",
			Help:      "Source fetch attempts by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_feed",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream HTTP fetches.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		ItemsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "items_ingested_total",
			Help:      "Normalized items stored after dedup.",
		}),
		ItemsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "items_deduped_total",
			Help:      "Items dropped or folded by the dedup engine.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "parse_errors_total",
			Help:      "Fetch cycles dropped due to malformed payloads.",
		}),
		IncidentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "incidents_created_total",
			Help:      "New incidents seeded from unmatched items.",
		}),
		IncidentsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "incidents_updated_total",
			Help:      "Items assigned to existing incidents.",
		}),
		IncidentsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "incidents_merged_total",
			Help:      "Automatic incident merges.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "events_published_total",
			Help:      "Events emitted to the fan-out bus by kind.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}),
		GeotagResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_feed",
			Name:      "geotag_resolved_total",
			Help:      "Geotag resolutions by confidence tier.",
		}, []string{"tier"}),
		SourcesInBackoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_feed",
			Name:      "sources_in_backoff",
			Help:      "Sources currently delayed by failure backoff.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_feed",
			Name:      "scheduler_running",
			Help:      "1 when the scheduler loop is active, 0 when shut down.",
		}),
		InFlightFetches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_feed",
			Name:      "in_flight_fetches",
			Help:      "Fetches currently holding a global concurrency slot.",
		}),
	}
}
