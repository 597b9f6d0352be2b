// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the tick-driven update agent state machine,
// grounded on the reference agent's update_agent::UpdateAgentState enum
// and its actor.rs tick loop: a single-threaded FSM owning the current
// state, deploy-attempt and postponement counters, and the timestamp
// of its last transition, driving the graph trigger, update strategy,
// OS manager, and session probe collaborators on every tick.
package agent

import (
	"time"

	"github.com/coreos/zincati/internal/release"
)

// Discriminant names one of the FSM's states, independent of any
// payload it carries.
type Discriminant int

const (
	Start Discriminant = iota
	Initialized
	ReportedSteady
	NoNewUpdate
	UpdateAvailable
	UpdateStaged
	UpdateFinalized
	End
)

func (d Discriminant) String() string {
	switch d {
	case Start:
		return "Start"
	case Initialized:
		return "Initialized"
	case ReportedSteady:
		return "ReportedSteady"
	case NoNewUpdate:
		return "NoNewUpdate"
	case UpdateAvailable:
		return "UpdateAvailable"
	case UpdateStaged:
		return "UpdateStaged"
	case UpdateFinalized:
		return "UpdateFinalized"
	case End:
		return "End"
	default:
		return "Unknown"
	}
}

// State is the FSM's current position: a discriminant plus whatever
// payload that discriminant carries (a target release and either a
// deploy-attempt or postponement counter, depending on which).
type State struct {
	Discriminant Discriminant
	Release      *release.Release
	// DeployAttempts is meaningful only in UpdateAvailable.
	DeployAttempts int
	// PostponementsRemaining is meaningful only in UpdateStaged.
	PostponementsRemaining int
	// Changed is the timestamp of the last transition that altered
	// Discriminant.
	Changed time.Time
}

// sameDiscriminant reports whether next carries the same discriminant
// as s, the signal the scheduler uses to decide whether to reschedule
// immediately or after the configured delay.
func (s State) sameDiscriminant(next State) bool {
	return s.Discriminant == next.Discriminant
}
