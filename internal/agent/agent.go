// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"time"

	"github.com/coreos/zincati/internal/config"
	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/metrics"
	"github.com/coreos/zincati/internal/release"
	"github.com/coreos/zincati/internal/session"
	"github.com/coreos/zincati/internal/trigger"
)

var log = logger.Logger()

// IPCStore is the subset of ipc.Store the FSM consults for an
// operator-forced finalization request.
type IPCStore interface {
	ConsumeFinalizeRequest() (requested, force bool, err error)
	RecordRefresh(at time.Time) error
}

// Config carries the FSM's tick cadence and counter bounds, all
// defaulted from internal/config's constants.
type Config struct {
	Enabled              bool
	RefreshPeriod        time.Duration
	SteadyInterval       time.Duration
	PostponementTime     time.Duration
	MaxDeployAttempts    int
	MaxFinalizePostponements int
}

// DefaultConfig returns a Config carrying the package-wide default
// cadence and counter bounds.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		RefreshPeriod:            config.DefaultRefreshPeriod,
		SteadyInterval:           config.DefaultSteadyInterval,
		PostponementTime:         config.DefaultPostponementTime,
		MaxDeployAttempts:        config.MaxDeployAttempts,
		MaxFinalizePostponements: config.MaxFinalizePostponements,
	}
}

// Agent is the tick-driven update agent state machine. It owns the
// current State and drives the Strategy, Trigger, OSManager, and
// session-probe collaborators on every tick; all of it runs on a
// single goroutine (see Run), matching the reference agent's
// single-actor ownership of UpdateAgentState.
type Agent struct {
	cfg      Config
	strategy Strategy
	trigger  Trigger
	osMgr    OSManager
	sessions SessionProber
	bcast    Broadcaster
	ipc      IPCStore
	metrics  *metrics.Registry

	state          State
	reachedSteady  bool
}

// New builds an Agent in its initial Start state.
func New(cfg Config, strategy Strategy, trig Trigger, osMgr OSManager, sessions SessionProber, bcast Broadcaster, ipc IPCStore, m *metrics.Registry) *Agent {
	return &Agent{
		cfg:      cfg,
		strategy: strategy,
		trigger:  trig,
		osMgr:    osMgr,
		sessions: sessions,
		bcast:    bcast,
		ipc:      ipc,
		metrics:  m,
		state:    State{Discriminant: Start, Changed: time.Now().UTC()},
	}
}

// State returns a copy of the FSM's current state.
func (a *Agent) State() State { return a.state }

// Tick runs exactly one FSM step and returns the delay before the next
// tick should be delivered: zero if this tick changed the state
// discriminant (reschedule immediately), otherwise refresh_period
// (or steady_interval, once steady has been reached).
func (a *Agent) Tick(ctx context.Context) time.Duration {
	prev := a.state
	next := a.step(ctx)

	if !prev.sameDiscriminant(next) {
		next.Changed = time.Now().UTC()
		log.Infof("agent state transition: %s -> %s", prev.Discriminant, next.Discriminant)
	} else {
		next.Changed = prev.Changed
	}
	a.state = next

	if next.Discriminant == ReportedSteady {
		a.reachedSteady = true
	}

	if a.metrics != nil {
		a.metrics.LastRefreshTimestamp.Set(float64(time.Now().UTC().Unix()))
	}
	if a.ipc != nil {
		if err := a.ipc.RecordRefresh(time.Now().UTC()); err != nil {
			log.Errorf("failed to record refresh tick: %v", err)
		}
	}

	if !prev.sameDiscriminant(next) {
		return 0
	}
	if a.reachedSteady {
		return a.cfg.SteadyInterval
	}
	return a.cfg.RefreshPeriod
}

// step computes the next state for one tick, without touching timing
// bookkeeping (that's Tick's job) — the exhaustive transition table of
// §4.5.
func (a *Agent) step(ctx context.Context) State {
	switch a.state.Discriminant {
	case Start:
		return a.stepStart()
	case Initialized:
		return a.stepInitialized(ctx)
	case ReportedSteady:
		return a.stepCheckForUpdate(ctx)
	case NoNewUpdate:
		return a.stepCheckForUpdate(ctx)
	case UpdateAvailable:
		return a.stepUpdateAvailable(ctx)
	case UpdateStaged:
		return a.stepUpdateStaged(ctx)
	case UpdateFinalized:
		log.Info("update applied, waiting for reboot")
		return State{Discriminant: End}
	case End:
		return a.state
	default:
		return a.state
	}
}

func (a *Agent) stepStart() State {
	if !a.cfg.Enabled {
		return State{Discriminant: End}
	}
	return State{Discriminant: Initialized}
}

func (a *Agent) stepInitialized(ctx context.Context) State {
	steady, err := a.reportSteady(ctx)
	if err != nil {
		log.Errorf("failed to report steady state: %v", err)
		return a.state
	}
	if !steady {
		return a.state
	}
	return State{Discriminant: ReportedSteady}
}

func (a *Agent) reportSteady(ctx context.Context) (bool, error) {
	reporter, ok := a.strategy.(SteadyReporter)
	if !ok {
		return true, nil
	}
	return reporter.ReportSteady(ctx)
}

// stepCheckForUpdate implements both the ReportedSteady and
// NoNewUpdate rows of §4.5: consult the strategy's
// can_check_and_fetch gate, then the trigger.
func (a *Agent) stepCheckForUpdate(ctx context.Context) State {
	canCheck, err := a.strategy.CanCheckAndStage(ctx)
	if err != nil {
		log.Errorf("failed to evaluate can_check_and_stage: %v", err)
		return a.state
	}
	if !canCheck {
		return a.state
	}

	outcome, err := a.trigger.Check(ctx)
	if err != nil {
		log.Errorf("failed to check for updates: %v", err)
		return a.state
	}

	a.recordGraphMetrics(outcome)

	if outcome.Release == nil {
		return State{Discriminant: NoNewUpdate}
	}
	return State{Discriminant: UpdateAvailable, Release: outcome.Release, DeployAttempts: 0}
}

// recordGraphMetrics populates the graph-shaped gauges from the last
// trigger check, regardless of whether it found a new release.
func (a *Agent) recordGraphMetrics(outcome *trigger.Outcome) {
	if a.metrics == nil {
		return
	}
	a.metrics.GraphNodeCount.Set(float64(outcome.NodeCount))
	a.metrics.GraphEdgeCount.Set(float64(outcome.EdgeCount))
	a.metrics.IgnoredCandidateCount.Set(float64(outcome.IgnoredCandidates))
	if outcome.DeadendReason != "" {
		a.metrics.BootedDeadend.Set(1)
	} else {
		a.metrics.BootedDeadend.Set(0)
	}
}

func (a *Agent) stepUpdateAvailable(ctx context.Context) State {
	rel := a.state.Release
	if a.metrics != nil {
		a.metrics.DeployAttempts.Set(float64(a.state.DeployAttempts))
	}

	if err := a.osMgr.StageDeployment(ctx, *rel); err != nil {
		log.Errorf("failed to stage deployment %s: %v", rel.Version, err)
		attempts := a.state.DeployAttempts + 1
		if attempts >= a.cfg.MaxDeployAttempts {
			log.Warnf("abandoning release %s after %d failed deploy attempts", rel.Version, attempts)
			return State{Discriminant: NoNewUpdate}
		}
		return State{Discriminant: UpdateAvailable, Release: rel, DeployAttempts: attempts}
	}

	maxPostponements := a.cfg.MaxFinalizePostponements
	return State{Discriminant: UpdateStaged, Release: rel, PostponementsRemaining: maxPostponements}
}

func (a *Agent) activeSessions() ([]session.Session, error) {
	if a.sessions == nil {
		return nil, nil
	}
	return a.sessions.InteractiveSessions()
}

func (a *Agent) stepUpdateStaged(ctx context.Context) State {
	rel := a.state.Release
	p := a.state.PostponementsRemaining
	if a.metrics != nil {
		a.metrics.PostponementsLeft.Set(float64(p))
	}

	forced := a.consumeForcedFinalize()

	canFinalize, err := a.canFinalizeNow(ctx, rel, p, forced)
	if err != nil {
		log.Errorf("failed to evaluate can_finalize: %v", err)
		return a.state
	}

	if !canFinalize {
		return State{Discriminant: UpdateStaged, Release: rel, PostponementsRemaining: p - 1}
	}

	if err := a.osMgr.FinalizeDeployment(ctx); err != nil {
		log.Errorf("failed to finalize deployment %s: %v", rel.Version, err)
		return a.state
	}
	return State{Discriminant: UpdateFinalized, Release: rel}
}

// canFinalizeNow folds the strategy predicate and the active-session
// postponement policy into a single boolean, mirroring the reference
// agent's handle_interactive_sessions combined with its strategy
// can_finalize check.
func (a *Agent) canFinalizeNow(ctx context.Context, rel *release.Release, p int, forced bool) (bool, error) {
	if forced {
		return true, nil
	}
	if p == 0 {
		return true, nil
	}

	strategyAllows, err := a.strategy.CanFinalize(ctx)
	if err != nil {
		return false, err
	}
	if strategyAllows {
		return true, nil
	}

	sessions, err := a.activeSessions()
	if err != nil {
		log.Errorf("failed to check for interactive sessions: %v", err)
		return true, nil
	}
	if a.metrics != nil {
		a.metrics.DetectedActiveUsers.Set(float64(len(sessions)))
	}
	if len(sessions) == 0 {
		return true, nil
	}

	a.warnPostponed(rel, p, sessions)
	return false, nil
}

func (a *Agent) warnPostponed(rel *release.Release, p int, sessions []session.Session) {
	if a.bcast == nil {
		return
	}
	switch p {
	case a.cfg.MaxFinalizePostponements:
		seconds := uint64(a.cfg.PostponementTime.Seconds()) * uint64(a.cfg.MaxFinalizePostponements)
		a.bcast.Broadcast(session.RebootWarning(seconds, rel.Version), sessions)
	case 1:
		a.bcast.Broadcast(session.RebootWarning(uint64(a.cfg.PostponementTime.Seconds()), rel.Version), sessions)
	}
}

func (a *Agent) consumeForcedFinalize() bool {
	if a.ipc == nil {
		return false
	}
	requested, force, err := a.ipc.ConsumeFinalizeRequest()
	if err != nil {
		log.Errorf("failed to consume finalize request: %v", err)
		return false
	}
	return requested && force
}

// Run drives the FSM until ctx is cancelled or a tick reaches End,
// delivering one tick immediately and then rescheduling after the
// delay Tick returns on
// every subsequent tick, exactly like the reference agent's actor
// rescheduling RefreshTick to "now" on a state change or to
// refresh_period/steady_interval otherwise.
func (a *Agent) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			delay := a.Tick(ctx)
			if a.state.Discriminant == End {
				return
			}
			timer.Reset(delay)
		}
	}
}
