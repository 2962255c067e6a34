package license

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "license_checkouts_total",
		Help: "Successful license checkouts.",
	}, []string{"software_id"})

	checkinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "license_checkins_total",
		Help: "Successful license checkins.",
	}, []string{"software_id"})

	denialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "license_denials_total",
		Help: "Rejected license requests by reason.",
	}, []string{"reason"})

	heartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "license_heartbeats_total",
		Help: "Heartbeat updates applied.",
	})

	reapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "license_sessions_reaped_total",
		Help: "Sessions expired by the reaper.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "license_active_sessions",
		Help: "Sessions currently tracked by the in-memory registry.",
	})
)
