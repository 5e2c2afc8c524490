// Package metrics provides the Prometheus collectors shared by the ingest
// and server binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricDecodeFailuresTotal        = "thunderindex_decode_failures_total"
	MetricEventsAppliedTotal         = "thunderindex_events_applied_total"
	MetricPollErrorsTotal            = "thunderindex_poll_errors_total"
	MetricBatchesProcessedTotal      = "thunderindex_batches_processed_total"
	MetricPartitionLag               = "thunderindex_partition_lag_seconds"
	MetricTrimmedEntriesTotal        = "thunderindex_trimmed_entries_total"
	MetricAdmissionRejectedTotal     = "thunderindex_admission_rejected_total"
	MetricAdmissionInFlight          = "thunderindex_admission_in_flight"
	MetricQueryTimeoutsTotal         = "thunderindex_query_timeouts_total"
	MetricQueryDuration              = "thunderindex_query_duration_seconds"
	MetricReemitFailuresTotal        = "thunderindex_reemit_failures_total"
	MetricDirectoryFailuresTotal     = "thunderindex_directory_failures_total"
	MetricIndexSize                  = "thunderindex_index_size"
)

// Metrics contains every Prometheus collector exercised by the core.
// All operations are thread-safe.
type Metrics struct {
	decodeFailures    *prometheus.CounterVec
	eventsApplied     *prometheus.CounterVec
	pollErrors        prometheus.Counter
	batchesProcessed  prometheus.Counter
	partitionLag      *prometheus.GaugeVec
	trimmedEntries    *prometheus.CounterVec
	admissionRejected prometheus.Counter
	admissionInFlight prometheus.Gauge
	queryTimeouts     prometheus.Counter
	queryDuration     prometheus.Histogram
	reemitFailures    prometheus.Counter
	directoryFailures prometheus.Counter
	indexSize         *prometheus.GaugeVec
	postStats         postStats
}

// New creates a Metrics instance with all collectors initialized. Metrics
// are not registered; call Register to attach them to a registry.
func New() *Metrics {
	return &Metrics{
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDecodeFailuresTotal,
			Help: "Total number of event payloads that failed to decode, by wire format.",
		}, []string{"wire_format"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsAppliedTotal,
			Help: "Total number of events applied to the index, by kind.",
		}, []string{"kind"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPollErrorsTotal,
			Help: "Total number of partition poll errors.",
		}),
		batchesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBatchesProcessedTotal,
			Help: "Total number of ingestion batches processed.",
		}),
		partitionLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPartitionLag,
			Help: "Observed consumer lag per partition, in seconds.",
		}, []string{"partition"}),
		trimmedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTrimmedEntriesTotal,
			Help: "Total number of TinyRefs removed by retention trimming, by timeline.",
		}, []string{"timeline"}),
		admissionRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAdmissionRejectedTotal,
			Help: "Total number of requests rejected for lack of an admission permit.",
		}),
		admissionInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricAdmissionInFlight,
			Help: "Current number of in-flight admitted requests.",
		}),
		queryTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricQueryTimeoutsTotal,
			Help: "Total number of fan-out reads that returned partial results due to deadline expiry.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricQueryDuration,
			Help:    "Histogram of fan-out read duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		reemitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReemitFailuresTotal,
			Help: "Total number of failed re-emits to the output bus.",
		}),
		directoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDirectoryFailuresTotal,
			Help: "Total number of directory RPC failures.",
		}),
		indexSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricIndexSize,
			Help: "Current entry count per index map.",
		}, []string{"map"}),
		postStats: newPostStats(),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns every Prometheus collector, for registration or tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	cs := []prometheus.Collector{
		m.decodeFailures,
		m.eventsApplied,
		m.pollErrors,
		m.batchesProcessed,
		m.partitionLag,
		m.trimmedEntries,
		m.admissionRejected,
		m.admissionInFlight,
		m.queryTimeouts,
		m.queryDuration,
		m.reemitFailures,
		m.directoryFailures,
		m.indexSize,
	}
	return append(cs, m.postStats.collectors()...)
}

func (m *Metrics) IncDecodeFailure(wireFormat string)     { m.decodeFailures.WithLabelValues(wireFormat).Inc() }
func (m *Metrics) IncEventApplied(kind string)            { m.eventsApplied.WithLabelValues(kind).Inc() }
func (m *Metrics) IncPollError()                          { m.pollErrors.Inc() }
func (m *Metrics) IncBatchProcessed()                     { m.batchesProcessed.Inc() }
func (m *Metrics) SetPartitionLag(partition string, secs float64) {
	m.partitionLag.WithLabelValues(partition).Set(secs)
}
func (m *Metrics) AddTrimmedEntries(timeline string, n int) {
	m.trimmedEntries.WithLabelValues(timeline).Add(float64(n))
}
func (m *Metrics) IncAdmissionRejected()       { m.admissionRejected.Inc() }
func (m *Metrics) SetAdmissionInFlight(n int)  { m.admissionInFlight.Set(float64(n)) }
func (m *Metrics) IncQueryTimeout()            { m.queryTimeouts.Inc() }
func (m *Metrics) ObserveQueryDuration(s float64) { m.queryDuration.Observe(s) }
func (m *Metrics) IncReemitFailure()           { m.reemitFailures.Inc() }
func (m *Metrics) IncDirectoryFailure()        { m.directoryFailures.Inc() }
func (m *Metrics) SetIndexSize(mapName string, n int) {
	m.indexSize.WithLabelValues(mapName).Set(float64(n))
}
