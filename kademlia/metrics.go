package kademlia

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors recommended (but not mandated)
// by spec §7: counters for probes emitted, contests won by incumbent or
// challenger, and unmatched pongs, plus a bucket-occupancy gauge.
type Metrics struct {
	ProbesEmitted    prometheus.Counter
	ContestsWon      *prometheus.CounterVec // label "winner" = "incumbent"|"challenger"
	UnmatchedPongs   prometheus.Counter
	BucketOccupancy  *prometheus.GaugeVec   // label "bucket"
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns the lazily-initialized, process-wide metrics
// registry, mirroring the sync.Once-guarded singleton pattern used for
// module metrics elsewhere in the Ethereum tooling ecosystem.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics builds a fresh, unregistered Metrics instance. Callers that
// want isolation from the global registry (tests, multiple tables in one
// process) should use this instead of DefaultMetrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ProbesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kademlia",
			Subsystem: "eviction",
			Name:      "probes_emitted_total",
			Help:      "Liveness pings emitted to resolve full-bucket eviction contests.",
		}),
		ContestsWon: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kademlia",
			Subsystem: "eviction",
			Name:      "contests_won_total",
			Help:      "Eviction contests resolved, segmented by winner.",
		}, []string{"winner"}),
		UnmatchedPongs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kademlia",
			Subsystem: "probe",
			Name:      "unmatched_pongs_total",
			Help:      "Pongs dropped without effect: stale, or with no matching pending probe and no first-contact data.",
		}),
		BucketOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kademlia",
			Subsystem: "table",
			Name:      "bucket_occupancy",
			Help:      "Number of nodes currently held in each bucket.",
		}, []string{"bucket"}),
	}
}

// Register adds every collector in m to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.ProbesEmitted, m.ContestsWon, m.UnmatchedPongs, m.BucketOccupancy} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
