// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package deadend tracks whether the currently booted release is a
// dead-end (will not further auto-update) and mirrors that state into
// an MOTD fragment for interactive sessions. Grounded on the reference
// agent's cincinnati::DeadEndState (an AtomicU8 tri-state) and its
// cli::deadend subcommand (tempfile-then-rename MOTD write), adapted
// to atomic.Int32 and spf13/afero so the MOTD writer is testable
// without touching the real filesystem.
package deadend

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/afero"
)

// FragmentsDir is the MOTD fragments directory scanned by pam_motd /
// update-motd.d-style tooling.
const FragmentsDir = "/run/motd.d"

// FragmentPath is the absolute path of the dead-end MOTD fragment.
const FragmentPath = FragmentsDir + "/85-zincati-deadend.motd"

const (
	stateUnknown int32 = iota
	stateNo
	stateYes
)

// State is a tri-valued, concurrency-safe cell recording whether the
// booted release has been determined to be a dead-end: unknown (never
// evaluated), no, or yes. It exists so the MOTD side effect is applied
// at most once per transition, rather than on every tick.
type State struct {
	v atomic.Int32
}

// New builds a State in the unknown position.
func New() *State {
	return &State{}
}

// IsDeadend reports whether the state is known-dead-end.
func (s *State) IsDeadend() bool { return s.v.Load() == stateYes }

// IsNoDeadend reports whether the state is known-not-dead-end.
func (s *State) IsNoDeadend() bool { return s.v.Load() == stateNo }

// SetDeadend moves the state to known-dead-end.
func (s *State) SetDeadend() { s.v.Store(stateYes) }

// SetNoDeadend moves the state to known-not-dead-end.
func (s *State) SetNoDeadend() { s.v.Store(stateNo) }

// Writer persists the dead-end MOTD fragment. fs is injected so tests
// can use an in-memory afero.Fs; production code wires afero.NewOsFs().
type Writer struct {
	fs afero.Fs
}

// NewWriter builds a Writer backed by fs.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// Set writes (or refreshes) the dead-end MOTD fragment with reason,
// via a temp-file-then-rename so readers never observe a partial
// write.
func (w *Writer) Set(reason string) error {
	if err := w.fs.MkdirAll(FragmentsDir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure %s exists: %w", FragmentsDir, err)
	}
	tmp, err := afero.TempFile(w.fs, FragmentsDir, ".deadend.*.motd.partial")
	if err != nil {
		return fmt.Errorf("failed to create temporary MOTD file under %s: %w", FragmentsDir, err)
	}
	tmpName := tmp.Name()
	content := fmt.Sprintf("This release is a dead-end and will not further auto-update: %s\n", reason)
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("failed to write MOTD content to %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("failed to close temporary MOTD file %s: %w", tmpName, err)
	}
	if err := w.fs.Chmod(tmpName, 0o644); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("failed to set permissions of temporary MOTD file at %s: %w", tmpName, err)
	}
	if err := w.fs.Rename(tmpName, FragmentPath); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("failed to persist MOTD fragment to %s: %w", FragmentPath, err)
	}
	return nil
}

// Unset removes the dead-end MOTD fragment, if present; a missing
// fragment is not an error.
func (w *Writer) Unset() error {
	err := w.fs.Remove(FragmentPath)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("failed to remove MOTD fragment at %s: %w", FragmentPath, err)
}

// Refresh applies reason/ok to state and writer, but only performs the
// MOTD side effect on an actual state transition — matching the
// reference agent's refresh_deadend_status idempotence.
//
// reason == "" means "not a dead-end".
func Refresh(state *State, writer *Writer, reason string) error {
	if reason != "" {
		if state.IsDeadend() {
			return nil
		}
		if err := writer.Set(reason); err != nil {
			return err
		}
		state.SetDeadend()
		return nil
	}
	if state.IsNoDeadend() {
		return nil
	}
	if err := writer.Unset(); err != nil {
		return err
	}
	state.SetNoDeadend()
	return nil
}
