// Package metrics registers the service's Prometheus collectors. They are
// served by the /metrics endpoint on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions is the number of currently connected channel sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubegrab_active_sessions",
		Help: "Number of connected progress channel sessions.",
	})

	// PlaylistJobs counts finished playlist jobs by outcome.
	PlaylistJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubegrab_playlist_jobs_total",
		Help: "Playlist jobs by terminal outcome.",
	}, []string{"outcome"})

	// ItemsDownloaded counts playlist items written to a workspace.
	ItemsDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tubegrab_playlist_items_total",
		Help: "Playlist items fully downloaded.",
	})

	// ProxyBytes counts bytes relayed by the single-file download proxy.
	ProxyBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tubegrab_proxy_bytes_total",
		Help: "Bytes relayed to clients by the single-file proxy.",
	})
)

const (
	OutcomeFinished = "finished"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)
