// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/coreos/zincati/internal/release"
	"github.com/coreos/zincati/internal/session"
	"github.com/coreos/zincati/internal/trigger"
)

// Strategy is the subset of strategy.Strategy the FSM depends on.
type Strategy interface {
	CanCheckAndStage(ctx context.Context) (bool, error)
	CanFinalize(ctx context.Context) (bool, error)
}

// SteadyReporter is an optional capability a Strategy may implement to
// perform its own I/O when the FSM reports the node steady (only
// strategy.FleetLock does; Immediate and Periodic report steady
// unconditionally by omitting this interface).
type SteadyReporter interface {
	ReportSteady(ctx context.Context) (bool, error)
}

// Trigger is the subset of trigger.Trigger the FSM depends on.
type Trigger interface {
	Check(ctx context.Context) (*trigger.Outcome, error)
}

// OSManager stages and finalizes deployments.
type OSManager interface {
	StageDeployment(ctx context.Context, rel release.Release) error
	FinalizeDeployment(ctx context.Context) error
}

// SessionProber lists active interactive login sessions.
type SessionProber interface {
	InteractiveSessions() ([]session.Session, error)
}

// Broadcaster delivers a finalization warning to every interactive
// session.
type Broadcaster interface {
	Broadcast(msg string, sessions []session.Session)
}
