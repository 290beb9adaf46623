package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveRecoverySessions tracks the number of RUNNING recovery sessions
	ActiveRecoverySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshsync_active_recovery_sessions",
			Help: "Number of recovery sessions currently running",
		},
	)

	// RecoveriesTotal tracks finished recovery sessions per strategy and outcome
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshsync_recoveries_total",
			Help: "Total number of finished recovery sessions",
		},
		[]string{"strategy", "status"},
	)

	// RecoveryDuration tracks recovery session wall-clock duration
	RecoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshsync_recovery_duration_seconds",
			Help:    "Recovery session duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"strategy"},
	)

	// PeerSyncsTotal tracks peer sync attempts during FORCE_RESYNC
	PeerSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshsync_peer_syncs_total",
			Help: "Total number of peer sync attempts during forced resync",
		},
		[]string{"result"},
	)

	// RecoveryTimeoutsTotal tracks sessions failed by the sweep's timeout check
	RecoveryTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshsync_recovery_timeouts_total",
			Help: "Total number of recovery sessions that exceeded the recovery timeout",
		},
	)
)
