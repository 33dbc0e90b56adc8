// Package metrics defines the Prometheus instruments for the seeding engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PresenceEvents counts presence feed events by kind.
	PresenceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedtrack_presence_events_total",
			Help: "Presence feed events processed, by event kind",
		},
		[]string{"event"},
	)

	// RewardsGranted counts whitelist grants issued by track.
	RewardsGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedtrack_rewards_granted_total",
			Help: "Whitelist reward grants issued, by track",
		},
		[]string{"track"},
	)

	// RewardsRevoked counts whitelist grants retracted by track.
	RewardsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedtrack_rewards_revoked_total",
			Help: "Whitelist reward grants retracted, by track",
		},
		[]string{"track"},
	)

	// SessionsClosed counts terminal session transitions by outcome.
	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedtrack_sessions_closed_total",
			Help: "Seeding sessions reaching a terminal status, by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveSessions tracks the number of currently active sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "seedtrack_active_sessions",
			Help: "Seeding sessions currently active",
		},
	)

	// GrantFailures counts collaborator failures during grant/retract calls.
	GrantFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedtrack_whitelist_failures_total",
			Help: "Whitelist collaborator call failures, by operation",
		},
		[]string{"op"},
	)
)

// Registry builds a registry with runtime collectors plus the engine
// instruments.
func Registry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		PresenceEvents,
		RewardsGranted,
		RewardsRevoked,
		SessionsClosed,
		ActiveSessions,
		GrantFailures,
	)
	return registry
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
