// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	out []byte
	err error
}

func (f *fakeExecutor) Execute(args []string) ([]byte, error) {
	return f.out, f.err
}

func TestInteractiveSessions_FiltersOutSessionsWithoutTTY(t *testing.T) {
	p := NewProber(&fakeExecutor{out: []byte(`[
		{"user":"core","tty":"tty1"},
		{"user":"sshd","tty":""}
	]`)})

	sessions, err := p.InteractiveSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "core", sessions[0].User)
	assert.Equal(t, "/dev/tty1", sessions[0].TTYDevice)
}

func TestInteractiveSessions_EmptyWhenNoSessions(t *testing.T) {
	p := NewProber(&fakeExecutor{out: []byte(`[]`)})

	sessions, err := p.InteractiveSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestInteractiveSessions_PropagatesExecError(t *testing.T) {
	p := NewProber(&fakeExecutor{err: errors.New("boom")})

	_, err := p.InteractiveSessions()
	require.Error(t, err)
}

func TestInteractiveSessions_PropagatesMalformedJSON(t *testing.T) {
	p := NewProber(&fakeExecutor{out: []byte("not-json")})

	_, err := p.InteractiveSessions()
	require.Error(t, err)
}

func TestBroadcast_WritesFormattedMessageToEachTTY(t *testing.T) {
	var writes []struct {
		name string
		data string
	}
	write := func(name string, data []byte, perm uint32) error {
		writes = append(writes, struct {
			name string
			data string
		}{name, string(data)})
		return nil
	}
	fixedNow := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	b := NewBroadcaster(write, func() time.Time { return fixedNow })

	b.Broadcast("hello", []Session{{User: "core", TTYDevice: "/dev/tty1"}})

	require.Len(t, writes, 1)
	assert.Equal(t, "/dev/tty1", writes[0].name)
	assert.Contains(t, writes[0].data, "Broadcast message from Zincati at Fri 2026-07-31 12:00:00 UTC:")
	assert.Contains(t, writes[0].data, "hello")
}

func TestBroadcast_ContinuesAfterPerSessionWriteError(t *testing.T) {
	calls := 0
	write := func(name string, data []byte, perm uint32) error {
		calls++
		if name == "/dev/tty1" {
			return errors.New("write failed")
		}
		return nil
	}
	b := NewBroadcaster(write, nil)

	b.Broadcast("hello", []Session{
		{User: "a", TTYDevice: "/dev/tty1"},
		{User: "b", TTYDevice: "/dev/tty2"},
	})

	assert.Equal(t, 2, calls)
}

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		seconds  uint64
		expected string
	}{
		{1, "1 second"},
		{2, "2 seconds"},
		{60, "1 minute"},
		{61, "1 minute and 1 second"},
		{90, "1 minute and 30 seconds"},
		{120, "2 minutes"},
		{42*60 + 23, "42 minutes and 23 seconds"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, FormatSeconds(c.seconds))
	}
}

func TestRebootWarning_IncludesVersionAndDuration(t *testing.T) {
	msg := RebootWarning(65, "39.20260101.1.0")
	assert.Contains(t, msg, "New update 39.20260101.1.0 deployed.")
	assert.Contains(t, msg, "1 minute and 5 seconds")
}
