package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publisher_scheduler_ticks_total",
			Help: "Total number of scheduler ticks started",
		},
	)

	schedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "publisher_scheduler_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Due records listed by the most recent tick
	schedulerDueRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "publisher_scheduler_due_records",
			Help: "Number of due records listed by the last tick",
		},
	)

	// Publication outcomes partitioned by record kind, outcome and failure category
	publicationOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_publication_outcomes_total",
			Help: "Total number of publication attempts by outcome",
		},
		[]string{"kind", "outcome", "category"},
	)

	staleClaimsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publisher_stale_claims_expired_total",
			Help: "Total number of claimed records failed by the stale-claim sweep",
		},
	)
)
