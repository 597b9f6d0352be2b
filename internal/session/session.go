// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package session probes for active interactive login sessions and
// broadcasts finalization warnings to their TTYs, grounded on the
// reference agent's get_interactive_user_sessions/broadcast pair:
// loginctl list-sessions --output=json via the generic Executor,
// filtering out sessions without a tty, then writing a formatted
// warning directly to each session's /dev tty device.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/utils"
)

var log = logger.Logger()

// Session is an interactive login session with an attached TTY.
type Session struct {
	User string
	// TTYDevice is the /dev path backing the session's terminal.
	TTYDevice string
}

// sessionJSON mirrors one element of `loginctl list-sessions --output=json`.
type sessionJSON struct {
	User string `json:"user"`
	TTY  string `json:"tty"`
}

// Prober lists interactive login sessions.
type Prober struct {
	executor utils.Executor
}

// NewProber builds a Prober around executor.
func NewProber(executor utils.Executor) *Prober {
	return &Prober{executor: executor}
}

// InteractiveSessions lists the sessions currently attached to a TTY.
// Sessions without a tty are non-interactive and excluded.
func (p *Prober) InteractiveSessions() ([]Session, error) {
	out, err := p.executor.Execute([]string{"loginctl", "list-sessions", "--output=json"})
	if err != nil {
		return nil, fmt.Errorf("failed to run loginctl: %w", err)
	}

	var raw []sessionJSON
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to deserialize output of loginctl: %w", err)
	}

	var sessions []Session
	for _, s := range raw {
		if s.TTY == "" {
			log.Debugf("found user %s with no tty, user considered non-interactive", s.User)
			continue
		}
		sessions = append(sessions, Session{User: s.User, TTYDevice: "/dev/" + s.TTY})
	}
	return sessions, nil
}

// FileWriter writes content to a named file; the default wraps
// os.WriteFile, and tests pass a recording function.
type FileWriter func(name string, data []byte, perm uint32) error

// Broadcaster writes finalization warnings to every interactive
// session's TTY.
type Broadcaster struct {
	write FileWriter
	now   func() time.Time
}

// NewBroadcaster builds a Broadcaster using the given file writer and
// clock; pass nil for either to use os.WriteFile and time.Now.
func NewBroadcaster(write FileWriter, now func() time.Time) *Broadcaster {
	if write == nil {
		write = defaultFileWriter
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Broadcaster{write: write, now: now}
}

// Broadcast attempts to deliver msg to every session's TTY, logging
// (but not failing) on a per-session write error.
func (b *Broadcaster) Broadcast(msg string, sessions []Session) {
	broadcastMsg := fmt.Sprintf("\nBroadcast message from Zincati at %s:\n%s\n",
		b.now().Format("Mon 2006-01-02 15:04:05 MST"), msg)

	delivered := 0
	for _, s := range sessions {
		log.Tracef("attempting to broadcast a message to user %s at %s", s.User, s.TTYDevice)
		if err := b.write(s.TTYDevice, []byte(broadcastMsg), 0o644); err != nil {
			log.Errorf("failed to write to %s: %v", s.TTYDevice, err)
			continue
		}
		delivered++
	}

	if delivered != len(sessions) {
		log.Warnf("%d interactive sessions found, but only broadcasted to %d", len(sessions), delivered)
	}
}

func defaultFileWriter(name string, data []byte, perm uint32) error {
	return os.WriteFile(name, data, os.FileMode(perm))
}

// RebootWarning formats the warning message for an impending
// finalization reboot of the given release version, seconds from now.
func RebootWarning(seconds uint64, releaseVersion string) string {
	return fmt.Sprintf(
		"New update %s deployed.\nRebooting into this update in around %s (if permitted by update strategy).",
		releaseVersion, FormatSeconds(seconds),
	)
}

// FormatSeconds renders a duration in seconds as a human-friendly
// "N minute(s)[ and M second(s)]" string, e.g. 65 -> "1 minute and 5 seconds".
func FormatSeconds(seconds uint64) string {
	minutes := seconds / 60
	remainder := seconds % 60

	var out string
	if minutes >= 1 {
		plural := "s"
		if minutes == 1 {
			plural = ""
		}
		out = fmt.Sprintf("%d minute%s", minutes, plural)
		if remainder > 0 {
			out += " and "
		}
	}
	if remainder > 0 {
		plural := "s"
		if remainder == 1 {
			plural = ""
		}
		out += fmt.Sprintf("%d second%s", remainder, plural)
	}
	return out
}
