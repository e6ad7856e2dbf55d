package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusportal",
		Subsystem: "profile_cache",
		Name:      "lookups_total",
		Help:      "Profile cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusportal",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Profile resolutions by outcome code.",
	}, []string{"outcome"})

	Backfills = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusportal",
		Subsystem: "resolver",
		Name:      "backfills_total",
		Help:      "auth_id backfill writes by result.",
	}, []string{"result"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campusportal",
		Subsystem: "resolver",
		Name:      "network_seconds",
		Help:      "Time spent in the store phase of a resolution.",
		Buckets:   prometheus.DefBuckets,
	})

	SkippedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusportal",
		Subsystem: "views",
		Name:      "skipped_records_total",
		Help:      "Invalid records skipped while aggregating or reconciling.",
	}, []string{"view"})

	ChangeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusportal",
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Change notifications received by table.",
	}, []string{"table"})
)
