// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package strategy implements the three update-strategy variants of
// §4.3: immediate, periodic, and fleet_lock. Each variant answers two
// questions on every tick — may I fetch/stage an update now, and may I
// finalize (reboot into) a staged one now — grounded on the reference
// agent's strategy::UpdateAgentStrategy enum (strategy/mod.rs) and its
// three per-variant submodules.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/zincati/internal/calendar"
	"github.com/coreos/zincati/internal/fleetlock"
	"github.com/coreos/zincati/internal/metrics"
)

// Mode names a strategy variant, also used as the Prometheus label
// value for zincati_update_strategy_mode.
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModePeriodic  Mode = "periodic"
	ModeFleetLock Mode = "fleet_lock"
)

// Strategy gates whether the agent may fetch/stage and finalize
// updates right now.
type Strategy interface {
	Mode() Mode
	// CanCheckAndStage reports whether the agent may fetch and stage an
	// update at the given instant.
	CanCheckAndStage(ctx context.Context) (bool, error)
	// CanFinalize reports whether the agent may reboot into a staged
	// update at the given instant.
	CanFinalize(ctx context.Context) (bool, error)
}

// recordMode publishes the active mode as the single set Prometheus
// time-series for zincati_update_strategy_mode, matching the reference
// agent's one-gauge-per-variant-instantiation pattern.
func recordMode(m *metrics.Registry, mode Mode) {
	if m == nil {
		return
	}
	m.StrategyMode.Reset()
	m.StrategyMode.WithLabelValues(string(mode)).Set(1)
}

// Immediate always allows fetching/staging and finalizing; its two
// booleans let an operator disable either half independently (e.g.
// stage updates but never auto-reboot).
type Immediate struct {
	FetchUpdates    bool
	FinalizeUpdates bool
}

// NewImmediate builds an Immediate strategy and records its metrics.
func NewImmediate(fetch, finalize bool, m *metrics.Registry) *Immediate {
	recordMode(m, ModeImmediate)
	return &Immediate{FetchUpdates: fetch, FinalizeUpdates: finalize}
}

func (s *Immediate) Mode() Mode { return ModeImmediate }

func (s *Immediate) CanCheckAndStage(context.Context) (bool, error) { return s.FetchUpdates, nil }

func (s *Immediate) CanFinalize(context.Context) (bool, error) { return s.FinalizeUpdates, nil }

// Periodic allows checking for updates at any time and restricts
// finalizing to the windows of a WeeklyCalendar.
type Periodic struct {
	cal *calendar.Calendar
}

// NewPeriodic builds a Periodic strategy; an empty calendar is a
// construction error, matching the reference agent's
// "periodic strategy with no intervals configured" validation.
func NewPeriodic(cal *calendar.Calendar, m *metrics.Registry) (*Periodic, error) {
	if cal == nil || len(cal.Windows()) == 0 {
		return nil, fmt.Errorf("periodic strategy requires at least one calendar window")
	}
	recordMode(m, ModePeriodic)
	if m != nil {
		m.PeriodicLengthMinutes.Set(float64(cal.LengthMinutes()))
	}
	return &Periodic{cal: cal}, nil
}

func (s *Periodic) Mode() Mode { return ModePeriodic }

func (s *Periodic) CanCheckAndStage(context.Context) (bool, error) {
	return true, nil
}

func (s *Periodic) CanFinalize(context.Context) (bool, error) {
	return s.cal.Contains(time.Now().UTC()), nil
}

// Calendar exposes the underlying calendar, e.g. for the FSM to
// compute a "remind me in" delay when outside the window.
func (s *Periodic) Calendar() *calendar.Calendar { return s.cal }

// FleetLockClient is the subset of *fleetlock.Client the strategy
// depends on, so tests can substitute a fake.
type FleetLockClient interface {
	PreReboot(ctx context.Context) (bool, *fleetlock.Error)
	SteadyState(ctx context.Context) (bool, *fleetlock.Error)
}

// FleetLock always allows fetching/staging, but gates finalization on
// acquiring a remote semaphore slot — grounded on the reference
// agent's StrategyFleetLock (strategy/fleet_lock.rs), which reports
// "can check updates: true" unconditionally and defers reboot
// permission entirely to the remote manager's pre_reboot response.
type FleetLock struct {
	client FleetLockClient
}

// NewFleetLock builds a FleetLock strategy around client.
func NewFleetLock(client FleetLockClient, m *metrics.Registry) *FleetLock {
	recordMode(m, ModeFleetLock)
	return &FleetLock{client: client}
}

func (s *FleetLock) Mode() Mode { return ModeFleetLock }

func (s *FleetLock) CanCheckAndStage(context.Context) (bool, error) { return true, nil }

func (s *FleetLock) CanFinalize(ctx context.Context) (bool, error) {
	ok, ferr := s.client.PreReboot(ctx)
	if ferr != nil {
		return ok, ferr
	}
	return ok, nil
}

// ReportSteady tells the remote manager this node is no longer
// attempting to reboot, releasing any held semaphore slot. Unlike
// CanCheckAndStage/CanFinalize this isn't part of the Strategy
// interface: the FSM calls it explicitly on entry to ReportedSteady,
// matching the reference agent's actor-level steady_state() call.
func (s *FleetLock) ReportSteady(ctx context.Context) (bool, error) {
	ok, ferr := s.client.SteadyState(ctx)
	if ferr != nil {
		return ok, ferr
	}
	return ok, nil
}
