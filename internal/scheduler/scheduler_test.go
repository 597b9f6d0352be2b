// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleHeartbeat_RunsRepeatedly(t *testing.T) {
	s := New()
	defer s.Stop()

	var calls int32
	require.NoError(t, s.ScheduleHeartbeat(20*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestScheduleConfigRescan_RunsRepeatedly(t *testing.T) {
	s := New()
	defer s.Stop()

	var calls int32
	require.NoError(t, s.ScheduleConfigRescan(20*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestScheduleHeartbeat_ReplacingJobRemovesPrevious(t *testing.T) {
	s := New()
	defer s.Stop()

	var firstCalls, secondCalls int32
	require.NoError(t, s.ScheduleHeartbeat(15*time.Millisecond, func() {
		atomic.AddInt32(&firstCalls, 1)
	}))
	time.Sleep(40 * time.Millisecond)

	require.NoError(t, s.ScheduleHeartbeat(15*time.Millisecond, func() {
		atomic.AddInt32(&secondCalls, 1)
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&secondCalls) >= 2
	}, time.Second, 10*time.Millisecond)

	snapshotFirst := atomic.LoadInt32(&firstCalls)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snapshotFirst, atomic.LoadInt32(&firstCalls), "replaced job must stop firing")
}
