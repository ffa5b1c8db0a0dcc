package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the session manager
type Metrics struct {
	CollectionRuns     prometheus.Counter
	CollectionFailures prometheus.Counter
	FlaggedSessions    prometheus.Counter
	VendorLookups      prometheus.Counter
	VendorLookupErrors prometheus.Counter
	ISEGroupUpdates    prometheus.Counter
	LastRunFlagged     prometheus.Gauge
	LastRunTimestamp   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all counters and gauges
func NewMetrics() *Metrics {
	return &Metrics{
		CollectionRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collection_runs_total",
			Help: "Total number of collection runs started",
		}),
		CollectionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collection_failures_total",
			Help: "Total number of collection runs that aborted on a device error",
		}),
		FlaggedSessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flagged_sessions_total",
			Help: "Total number of failed or unauthorized sessions collected",
		}),
		VendorLookups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vendor_lookups_total",
			Help: "Total number of MAC vendor API requests issued",
		}),
		VendorLookupErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vendor_lookup_errors_total",
			Help: "Total number of MAC vendor API requests that failed or returned non-200",
		}),
		ISEGroupUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ise_group_updates_total",
			Help: "Total number of endpoint group updates pushed to ISE",
		}),
		LastRunFlagged: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "last_run_flagged_sessions",
			Help: "Number of flagged sessions in the most recent collection run",
		}),
		LastRunTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "last_run_timestamp_seconds",
			Help: "Unix timestamp of the most recent successful collection run",
		}),
	}
}

// IncrementCollectionRuns increments the collection_runs_total counter
func (m *Metrics) IncrementCollectionRuns() {
	m.CollectionRuns.Inc()
}

// IncrementCollectionFailures increments the collection_failures_total counter
func (m *Metrics) IncrementCollectionFailures() {
	m.CollectionFailures.Inc()
}

// AddFlaggedSessions adds to the flagged_sessions_total counter and updates
// the last-run gauges
func (m *Metrics) AddFlaggedSessions(n int, completedAt float64) {
	m.FlaggedSessions.Add(float64(n))
	m.LastRunFlagged.Set(float64(n))
	m.LastRunTimestamp.Set(completedAt)
}

// IncrementVendorLookups increments the vendor_lookups_total counter
func (m *Metrics) IncrementVendorLookups() {
	m.VendorLookups.Inc()
}

// IncrementVendorLookupErrors increments the vendor_lookup_errors_total counter
func (m *Metrics) IncrementVendorLookupErrors() {
	m.VendorLookupErrors.Inc()
}

// IncrementISEGroupUpdates increments the ise_group_updates_total counter
func (m *Metrics) IncrementISEGroupUpdates() {
	m.ISEGroupUpdates.Inc()
}
