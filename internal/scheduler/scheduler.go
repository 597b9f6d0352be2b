// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package scheduler drives the agent's auxiliary periodic loops — the
// readiness/status heartbeat and the configuration-directory re-scan —
// which are deliberately kept off the FSM's own variable-delay tick
// (internal/agent.Agent.Run uses a plain timer so it can reschedule
// immediately on a state change, a shape gocron doesn't fit). Grounded
// on the reference agent's PuaScheduler: same gocron wrapping idiom
// (SingletonModeAll, tagged jobs, StartAsync), repurposed from
// subsystem update orchestration to agent-lifecycle housekeeping.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"

	"github.com/coreos/zincati/internal/logger"
)

const (
	heartbeatTag  = "readiness-heartbeat"
	rescanTag     = "config-rescan"
)

var log = logger.Logger()

// AuxScheduler runs the agent's housekeeping jobs on their own gocron
// instance, independent of the FSM's tick cadence.
type AuxScheduler struct {
	cron *gocron.Scheduler
}

// New builds an AuxScheduler and starts its internal gocron loop.
func New() *AuxScheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	cron.StartAsync()
	return &AuxScheduler{cron: cron}
}

// ScheduleHeartbeat runs fn every interval, tagged so it can be
// replaced or removed independently of the config-rescan job.
func (s *AuxScheduler) ScheduleHeartbeat(interval time.Duration, fn func()) error {
	if err := s.cron.RemoveByTag(heartbeatTag); err != nil {
		log.Debugf("no existing heartbeat job to remove: %v", err)
	}
	_, err := s.cron.Every(interval).Tag(heartbeatTag).Do(fn)
	return err
}

// ScheduleConfigRescan runs fn every interval; cmd/zincati uses it to
// re-validate the config directory between agent restarts.
func (s *AuxScheduler) ScheduleConfigRescan(interval time.Duration, fn func()) error {
	if err := s.cron.RemoveByTag(rescanTag); err != nil {
		log.Debugf("no existing config-rescan job to remove: %v", err)
	}
	_, err := s.cron.Every(interval).Tag(rescanTag).Do(fn)
	return err
}

// Stop halts both jobs and releases the underlying gocron scheduler.
func (s *AuxScheduler) Stop() {
	s.cron.Stop()
}
