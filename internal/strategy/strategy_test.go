// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/zincati/internal/calendar"
	"github.com/coreos/zincati/internal/fleetlock"
	"github.com/coreos/zincati/internal/metrics"
)

func TestImmediate_ReflectsConfiguredBooleans(t *testing.T) {
	s := NewImmediate(true, false, nil)
	assert.Equal(t, ModeImmediate, s.Mode())

	canStage, err := s.CanCheckAndStage(context.Background())
	require.NoError(t, err)
	assert.True(t, canStage)

	canFinalize, err := s.CanFinalize(context.Background())
	require.NoError(t, err)
	assert.False(t, canFinalize)
}

func TestNewPeriodic_RejectsEmptyCalendar(t *testing.T) {
	_, err := NewPeriodic(calendar.New(), nil)
	assert.Error(t, err)
}

func TestNewPeriodic_AcceptsCalendarAndRegistry(t *testing.T) {
	cal := calendar.New()
	for _, w := range mustWindows(t, calendar.Monday, 1, 0, 30*time.Minute) {
		cal.AddWindow(w)
	}
	reg := metrics.NewUnregistered()
	s, err := NewPeriodic(cal, reg)
	require.NoError(t, err)
	assert.Equal(t, ModePeriodic, s.Mode())
	assert.Same(t, cal, s.Calendar())
}

func mustWindows(t *testing.T, day calendar.Weekday, hour, minute int, length time.Duration) []calendar.WeeklyWindow {
	t.Helper()
	ws, err := calendar.ParseTimespan(day, hour, minute, length)
	require.NoError(t, err)
	return ws
}

type fakeFleetLockClient struct {
	preRebootOK  bool
	preRebootErr *fleetlock.Error
	steadyOK     bool
	steadyErr    *fleetlock.Error
}

func (f *fakeFleetLockClient) PreReboot(context.Context) (bool, *fleetlock.Error) {
	return f.preRebootOK, f.preRebootErr
}

func (f *fakeFleetLockClient) SteadyState(context.Context) (bool, *fleetlock.Error) {
	return f.steadyOK, f.steadyErr
}

func TestFleetLock_AlwaysAllowsCheckAndStage(t *testing.T) {
	s := NewFleetLock(&fakeFleetLockClient{}, nil)
	canStage, err := s.CanCheckAndStage(context.Background())
	require.NoError(t, err)
	assert.True(t, canStage)
}

func TestFleetLock_FinalizeDefersToRemoteSemaphore(t *testing.T) {
	s := NewFleetLock(&fakeFleetLockClient{preRebootOK: true}, nil)
	ok, err := s.CanFinalize(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	s = NewFleetLock(&fakeFleetLockClient{preRebootOK: false}, nil)
	ok, err = s.CanFinalize(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFleetLock_ReportSteadyPropagatesRemoteError(t *testing.T) {
	s := NewFleetLock(&fakeFleetLockClient{steadyErr: &fleetlock.Error{StatusCode: 500, Value: "boom"}}, nil)
	_, err := s.ReportSteady(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
