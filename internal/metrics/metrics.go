// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package metrics owns the process-wide Prometheus registry and the
// contractual side-effect gauges/counters named throughout §4 of the
// design (node/edge/ignored-candidate counts, booted-deadend, strategy
// mode, last-refresh timestamp). Grounded on the reference agent's
// lazy_static Prometheus registrations (update_agent/actor.rs,
// cincinnati/mod.rs) adapted to client_golang's explicit-registry idiom,
// the same library two other agents in this family already depend on.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every gauge/counter the core populates. The core
// never starts an HTTP listener for it (the exposition endpoint is an
// external concern per §1); cmd/zincati registers it with
// prometheus.DefaultRegisterer and does not serve it over HTTP either.
type Registry struct {
	LastRefreshTimestamp  prometheus.Gauge
	BootedDeadend         prometheus.Gauge
	GraphNodeCount        prometheus.Gauge
	GraphEdgeCount        prometheus.Gauge
	IgnoredCandidateCount prometheus.Gauge
	StrategyMode          *prometheus.GaugeVec
	PeriodicLengthMinutes prometheus.Gauge
	DeployAttempts        prometheus.Gauge
	PostponementsLeft     prometheus.Gauge
	DetectedActiveUsers   prometheus.Gauge
	UpstreamErrors        *prometheus.CounterVec
}

// New builds a Registry with all metrics registered against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		LastRefreshTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_update_agent_last_refresh_timestamp",
			Help: "UTC timestamp of update-agent last refresh tick.",
		}),
		BootedDeadend: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_cincinnati_booted_deadend",
			Help: "Whether the currently booted release is a dead-end (1) or not (0).",
		}),
		GraphNodeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_cincinnati_graph_nodes",
			Help: "Number of nodes in the last fetched update graph.",
		}),
		GraphEdgeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_cincinnati_graph_edges",
			Help: "Number of edges in the last fetched update graph.",
		}),
		IgnoredCandidateCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_cincinnati_graph_ignored_candidates",
			Help: "Number of candidate releases excluded by the denylist in the last resolution.",
		}),
		StrategyMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zincati_update_strategy_mode",
			Help: "Active update strategy, one time-series per known mode set to 1.",
		}, []string{"mode"}),
		PeriodicLengthMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_update_periodic_length_minutes",
			Help: "Coalesced length, in minutes, of the periodic strategy's weekly calendar.",
		}),
		DeployAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_update_agent_deploy_attempts",
			Help: "Number of consecutive failed stage attempts for the current UpdateAvailable release.",
		}),
		PostponementsLeft: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_update_agent_postponements_remaining",
			Help: "Remaining finalization postponements for the current UpdateStaged release.",
		}),
		DetectedActiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zincati_update_agent_finalization_detected_active_users",
			Help: "Number of active interactive user sessions detected during the last finalization check.",
		}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zincati_update_agent_upstream_errors_total",
			Help: "Count of upstream errors, by machine-readable error kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.LastRefreshTimestamp,
		m.BootedDeadend,
		m.GraphNodeCount,
		m.GraphEdgeCount,
		m.IgnoredCandidateCount,
		m.StrategyMode,
		m.PeriodicLengthMinutes,
		m.DeployAttempts,
		m.PostponementsLeft,
		m.DetectedActiveUsers,
		m.UpstreamErrors,
	)
	return m
}

// NewUnregistered builds a Registry against a fresh, private
// prometheus.Registry — used by tests that want isolated metrics.
func NewUnregistered() *Registry {
	return New(prometheus.NewRegistry())
}
