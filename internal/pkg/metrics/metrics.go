package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the agent's private metrics registry, served by the
// operational HTTP endpoint.
var Registry = prometheus.NewRegistry()

var (
	// CyclesTotal counts finished sync cycles by outcome.
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetsink_cycles_total",
			Help: "Total number of sync cycles by outcome.",
		},
		[]string{"result"}, // result: success or an error kind
	)

	// RecordsWrittenTotal counts CSV rows appended across all devices.
	RecordsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsink_records_written_total",
			Help: "Total number of backup rows appended.",
		},
	)

	// DevicesSeen reports the device count of the most recent cycle.
	DevicesSeen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetsink_devices_seen",
			Help: "Number of devices the fleet server reported in the last cycle.",
		},
	)

	// BatchesTotal counts composite requests sent to the fleet server.
	BatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsink_api_batches_total",
			Help: "Total number of composite batch requests issued.",
		},
	)

	// BackoffsTotal counts scheduler backoffs by reason.
	BackoffsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetsink_backoffs_total",
			Help: "Total number of scheduler backoffs by reason.",
		},
		[]string{"reason"}, // reason: transient or rate-limit
	)

	// CycleDuration observes wall time per cycle.
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsink_cycle_duration_seconds",
			Help:    "Wall clock duration of one sync cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	Registry.MustRegister(CyclesTotal)
	Registry.MustRegister(RecordsWrittenTotal)
	Registry.MustRegister(DevicesSeen)
	Registry.MustRegister(BatchesTotal)
	Registry.MustRegister(BackoffsTotal)
	Registry.MustRegister(CycleDuration)

	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
