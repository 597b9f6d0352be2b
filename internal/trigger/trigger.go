// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package trigger implements the two ways the agent learns it should
// check for updates, grounded on the reference agent's
// update_agent::trigger::Trigger enum: a Cincinnati variant that
// polls the update-graph service on every tick, and a Remote variant
// that never originates a check on its own — updates are instead
// pushed in by an external channel, which calls Push.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/zincati/internal/cincinnati"
	"github.com/coreos/zincati/internal/deadend"
	"github.com/coreos/zincati/internal/identity"
	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/release"
	"github.com/coreos/zincati/internal/resolver"
)

var log = logger.Logger()

// Outcome is the result of a single trigger check: either a release
// to move to UpdateAvailable, or nil meaning "no new update".
type Outcome struct {
	Release           *release.Release
	DeadendReason     string
	NodeCount         int
	EdgeCount         int
	IgnoredCandidates int
}

// Trigger decides, on each FSM tick in ReportedSteady/NoNewUpdate,
// whether a new release is available.
type Trigger interface {
	Check(ctx context.Context) (*Outcome, error)
}

// GraphClient fetches the update graph; satisfied by *cincinnati.Client.
type GraphClient interface {
	FetchGraph(ctx context.Context) (*cincinnati.Graph, *cincinnati.Error)
}

// DenyListSource supplies the locally-known releases that must never
// be re-selected; satisfied by *osmanager.Manager.
type DenyListSource interface {
	DenyList(ctx context.Context) (release.DenyList, error)
}

// Cincinnati polls the update-graph service and resolves the next
// release on every check.
type Cincinnati struct {
	client         GraphClient
	booted         resolver.Booted
	denyListSource DenyListSource
	allowDowngrade bool
	deadendState   *deadend.State
	deadendWriter  *deadend.Writer
}

// NewCincinnati builds a Cincinnati trigger.
func NewCincinnati(client GraphClient, booted resolver.Booted, denyListSource DenyListSource, allowDowngrade bool, deadendState *deadend.State, deadendWriter *deadend.Writer) *Cincinnati {
	return &Cincinnati{
		client:         client,
		booted:         booted,
		denyListSource: denyListSource,
		allowDowngrade: allowDowngrade,
		deadendState:   deadendState,
		deadendWriter:  deadendWriter,
	}
}

// Check fetches the graph, folds in the locally-known deny list, and
// resolves the next candidate release, if any.
func (c *Cincinnati) Check(ctx context.Context) (*Outcome, error) {
	log.Trace("trying to check for updates (cincinnati)")

	graph, cincErr := c.client.FetchGraph(ctx)
	if cincErr != nil {
		return nil, fmt.Errorf("failed to fetch update graph: %w", cincErr)
	}

	denyList, err := c.denyListSource.DenyList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query local deployments for deny list: %w", err)
	}

	result, err := resolver.Resolve(graph, c.booted, denyList, c.allowDowngrade, c.deadendState, c.deadendWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve update graph: %w", err)
	}

	outcome := &Outcome{
		DeadendReason:     result.DeadendReason,
		NodeCount:         result.NodeCount,
		EdgeCount:         result.EdgeCount,
		IgnoredCandidates: result.IgnoredCandidates,
	}
	if result.Next == nil {
		return outcome, nil
	}
	log.Infof("found update on remote: %s", result.Next.Version)
	outcome.Release = result.Next
	return outcome, nil
}

// Remote never originates a check on its own: releases instead arrive
// in the fleet coordinator's status replies (see internal/comms), and
// cmd/zincati's heartbeat calls Push whenever a reply carries one. Check
// drains whatever Push last set, so the FSM picks it up on its next
// tick without Remote polling anything itself.
type Remote struct {
	mu      sync.Mutex
	pending *release.Release
}

// NewRemote builds a Remote trigger.
func NewRemote() *Remote {
	return &Remote{}
}

// Push records a release pushed in from the remote channel, to be
// handed to the FSM on the next Check.
func (r *Remote) Push(rel *release.Release) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = rel
}

// Check reports whatever release was last pushed in, if any, then
// clears it so it is only ever handed to the FSM once.
func (r *Remote) Check(ctx context.Context) (*Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := &Outcome{Release: r.pending}
	r.pending = nil
	return outcome, nil
}

// URLVariablesOf is a narrow seam so callers can build a GraphClient's
// templated query parameters from an Identity without importing
// identity into every trigger construction site.
func URLVariablesOf(id *identity.Identity) map[string]string {
	return id.CincinnatiParams()
}
