package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepsTotal counts sweeps by kind (placements, campaigns, reaper).
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_sweeps_total",
			Help: "The total number of sweeps run.",
		},
		[]string{"kind"},
	)

	// SweepDuration is a histogram of sweep wall time.
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_sweep_duration_seconds",
			Help:    "A histogram of sweep duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// PlacementsTotal counts placements that reached a terminal status.
	PlacementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_placements_total",
			Help: "The total number of placements processed, by outcome.",
		},
		[]string{"outcome"},
	)

	// PublishDuration is a histogram of provider publish calls.
	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_publish_duration_seconds",
			Help:    "A histogram of provider publish call latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "outcome"},
	)

	// EmailsTotal counts email sends by outcome.
	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_emails_total",
			Help: "The total number of campaign emails attempted, by outcome.",
		},
		[]string{"outcome"},
	)

	// ReapedTotal counts rows reclaimed from a stuck in-flight status.
	ReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_reaped_total",
			Help: "The total number of stale rows reclaimed.",
		},
		[]string{"table"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outreach_provider_breaker_state",
			Help: "Circuit breaker state per provider.",
		},
		[]string{"provider"},
	)
)

func ObserveSweep(kind string, started time.Time) {
	SweepsTotal.WithLabelValues(kind).Inc()
	SweepDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func ObservePublish(provider string, ok bool, started time.Time) {
	PublishDuration.WithLabelValues(provider, Outcome(ok)).Observe(time.Since(started).Seconds())
}

// Outcome is the label value used for success/failure counters.
func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
