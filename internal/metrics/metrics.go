// Package metrics exposes the tool's Prometheus collectors. They are
// registered on the default registry and served by the dashboard's
// /metrics endpoint in daemon mode.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassesTotal counts completed sync passes.
	PassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aw_sync",
		Name:      "passes_total",
		Help:      "Number of completed sync passes.",
	})

	// EventsSyncedTotal counts events copied into a destination store,
	// labeled by direction (pull or push).
	EventsSyncedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aw_sync",
		Name:      "events_synced_total",
		Help:      "Number of events merged into destination stores.",
	}, []string{"direction"})

	// SyncErrorsTotal counts failed sync passes.
	SyncErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aw_sync",
		Name:      "errors_total",
		Help:      "Number of sync passes aborted by an error.",
	})

	// LastPassTimestamp records the unix time of the last completed pass.
	LastPassTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aw_sync",
		Name:      "last_pass_timestamp_seconds",
		Help:      "Unix timestamp of the last completed sync pass.",
	})
)
