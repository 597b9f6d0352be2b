// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWindows(t *testing.T, day Weekday, hour, minute int, length time.Duration) []WeeklyWindow {
	t.Helper()
	ws, err := ParseTimespan(day, hour, minute, length)
	require.NoError(t, err)
	return ws
}

func TestParseTimespan_SingleWindow(t *testing.T) {
	ws := mustWindows(t, Tuesday, 21, 0, 75*time.Minute)
	require.Len(t, ws, 1)
	assert.Equal(t, 0, ws[0].EndMinutes()-ws[0].StartMinutes()-75)
}

func TestParseTimespan_SplitsAtWeekBoundary(t *testing.T) {
	// Sunday 23:00 for 120 minutes runs 60 minutes past the week end.
	ws := mustWindows(t, Sunday, 23, 0, 120*time.Minute)
	require.Len(t, ws, 2)
	assert.Equal(t, minutesPerWeek, ws[0].EndMinutes())
	assert.Equal(t, 0, ws[1].StartMinutes())
	sum := (ws[0].EndMinutes() - ws[0].StartMinutes()) + (ws[1].EndMinutes() - ws[1].StartMinutes())
	assert.Equal(t, 120, sum)
}

func TestParseTimespan_RejectsInvalidHour(t *testing.T) {
	_, err := ParseTimespan(Monday, 24, 0, time.Minute)
	assert.Error(t, err)
}

func TestParseTimespan_RejectsInvalidMinute(t *testing.T) {
	_, err := ParseTimespan(Monday, 0, 60, time.Minute)
	assert.Error(t, err)
}

func TestParseTimespan_RejectsZeroOrOversizedLength(t *testing.T) {
	_, err := ParseTimespan(Monday, 0, 0, 0)
	assert.Error(t, err)

	_, err = ParseTimespan(Monday, 0, 0, 8*24*time.Hour)
	assert.Error(t, err)
}

func TestCalendar_ContainsAndRemaining_SpecExampleOne(t *testing.T) {
	c := New()
	for _, w := range mustWindows(t, Tuesday, 21, 0, 75*time.Minute) {
		c.AddWindow(w)
	}
	ts := time.Date(2019, 6, 25, 21, 10, 0, 0, time.UTC)
	require.True(t, c.Contains(ts))
	remaining, ok := c.RemainingTo(ts)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), remaining)
}

func TestCalendar_RemainingWrapsToNextWeek_SpecExampleTwo(t *testing.T) {
	c := New()
	for _, w := range mustWindows(t, Monday, 1, 30, 15*time.Minute) {
		c.AddWindow(w)
	}
	ts := time.Date(2020, 11, 23, 2, 0, 0, 0, time.UTC)
	require.False(t, c.Contains(ts))
	remaining, ok := c.RemainingTo(ts)
	require.True(t, ok)
	assert.Equal(t, 10050*time.Minute, remaining)
}

func TestCalendar_ContainsIffRemainingIsZero(t *testing.T) {
	c := New()
	for _, w := range mustWindows(t, Wednesday, 10, 0, 30*time.Minute) {
		c.AddWindow(w)
	}
	for _, ts := range []time.Time{
		time.Date(2024, 1, 3, 10, 15, 0, 0, time.UTC), // Wednesday, inside
		time.Date(2024, 1, 3, 11, 0, 0, 0, time.UTC),  // Wednesday, outside
	} {
		remaining, ok := c.RemainingTo(ts)
		require.True(t, ok)
		assert.Equal(t, c.Contains(ts), remaining == 0)
	}
}

func TestCalendar_RemainingTo_EmptyCalendar(t *testing.T) {
	c := New()
	_, ok := c.RemainingTo(time.Now())
	assert.False(t, ok)
}

func TestCalendar_LengthVsTotalLength_Coalesces(t *testing.T) {
	c := New()
	w1 := mustWindows(t, Monday, 1, 15, 45*time.Minute)[0]
	c.AddWindow(w1)
	for _, w := range mustWindows(t, Sunday, 23, 30, 120*time.Minute) {
		c.AddWindow(w)
	}
	assert.Equal(t, 165, c.TotalLengthMinutes())
	assert.Equal(t, 150, c.LengthMinutes())
	assert.LessOrEqual(t, c.LengthMinutes(), c.TotalLengthMinutes())
}

func TestCalendar_LengthEqualsTotalWhenNoOverlap(t *testing.T) {
	c := New()
	c.AddWindow(mustWindows(t, Monday, 0, 0, 30*time.Minute)[0])
	c.AddWindow(mustWindows(t, Tuesday, 0, 0, 30*time.Minute)[0])
	assert.Equal(t, c.TotalLengthMinutes(), c.LengthMinutes())
}

func TestHumanRemainingDuration_Table(t *testing.T) {
	cases := []struct {
		minutes  int
		expected string
	}{
		{0, "now"},
		{1, "in 1m"},
		{59, "in 59m"},
		{60, "in 1h 0m"},
		{1439, "in 23h 59m"},
		{1440, "in 1d 0h 0m"},
		{4503, "in 3d 3h 3m"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, HumanRemainingDuration(time.Duration(tc.minutes)*time.Minute))
	}
}

func TestWeekdayFromString(t *testing.T) {
	w, err := WeekdayFromString("Tuesday")
	require.NoError(t, err)
	assert.Equal(t, Tuesday, w)

	_, err = WeekdayFromString("Funday")
	assert.Error(t, err)
}
