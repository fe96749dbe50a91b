// Package metrics declares the node's Prometheus instruments (§"SUPPLEMENTED
// FEATURES" 1: ambient observability, not a wallet-protocol feature). The
// namespace/subsystem grouping and package-level promauto var style follow
// the teacher's internal/infra/observability package, trimmed to the
// counters and gauges zold's own subsystems actually produce.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FarmBestScore tracks the value (suffix count) of the Farm's current
// best candidate score.
var FarmBestScore = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "zold",
	Subsystem: "farm",
	Name:      "best_score_value",
	Help:      "Value of the Farm's current best candidate score.",
})

// FarmCandidates tracks how many candidate scores the Farm currently
// holds.
var FarmCandidates = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "zold",
	Subsystem: "farm",
	Name:      "candidates",
	Help:      "Number of candidate scores currently held by the Farm.",
})

// RemotesKnown tracks the number of peers currently in the Remotes
// registry.
var RemotesKnown = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "zold",
	Subsystem: "remotes",
	Name:      "known",
	Help:      "Number of peers currently known to the Remotes registry.",
})

// RemotesErrorsTotal counts peer-iteration errors recorded against any
// remote (§4.4 "iterate").
var RemotesErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "zold",
	Subsystem: "remotes",
	Name:      "errors_total",
	Help:      "Total peer errors recorded across all remotes.",
})

// RemotesEvictedTotal counts peers auto-removed for exceeding Tolerance.
var RemotesEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "zold",
	Subsystem: "remotes",
	Name:      "evicted_total",
	Help:      "Total peers auto-removed after exceeding the error tolerance.",
})

// EntrancePushesTotal counts every wallet body accepted by Entrance.Push,
// regardless of whether it resulted in a merge.
var EntrancePushesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "zold",
	Subsystem: "entrance",
	Name:      "pushes_total",
	Help:      "Total wallet bodies accepted by the entrance.",
})

// EntranceMergesTotal counts pushes that resulted in a changed, merged
// wallet being written to disk (§4.5 "push").
var EntranceMergesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "zold",
	Subsystem: "entrance",
	Name:      "merges_total",
	Help:      "Total pushes that produced a changed merged wallet.",
})

// FrontRequestDuration tracks HTTP front request latency by route and
// status class (§4.6).
var FrontRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "zold",
	Subsystem: "front",
	Name:      "request_duration_seconds",
	Help:      "HTTP front request latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})

// ObserveRequest records one HTTP front request's latency, for use from
// a chi middleware wrapping the router.
func ObserveRequest(route, status string, d time.Duration) {
	FrontRequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}
