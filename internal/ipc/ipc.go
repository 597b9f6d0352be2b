// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package ipc exposes the agent's local control-surface operations —
// check_update, finalize_update, and last_refresh_time — backed by a
// small mutex-guarded JSON state file, grounded on the reference
// agent's metadata.Meta/ReadMeta/writeMeta (mutex-guarded, 0600-mode,
// symlink-checked JSON persistence), adapted from the teacher's
// big update-status struct down to the four fields this agent's
// IPC surface actually needs.
package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/utils"
)

var log = logger.Logger()

// state is the on-disk, JSON-encoded IPC state.
type state struct {
	LastRefreshTime     *time.Time `json:"lastRefreshTime,omitempty"`
	CheckUpdateRequested bool      `json:"checkUpdateRequested"`
	FinalizeRequested    bool      `json:"finalizeRequested"`
	FinalizeForce        bool      `json:"finalizeForce"`
}

// Store is the agent's local, persisted control surface.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore builds a Store backed by the JSON file at path, creating it
// (mode 0600) if absent.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking IPC state file: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating IPC state file %s: %w", s.path, err)
	}
	defer f.Close()
	return s.writeLocked(state{})
}

func (s *Store) readLocked() (state, error) {
	if err := utils.IsSymlink(s.path); err != nil {
		return state{}, err
	}
	content, err := os.ReadFile(s.path)
	if err != nil {
		return state{}, fmt.Errorf("reading IPC state file: %w", err)
	}
	if len(content) == 0 {
		return state{}, nil
	}
	var st state
	if err := json.Unmarshal(content, &st); err != nil {
		return state{}, fmt.Errorf("unmarshaling IPC state: %w", err)
	}
	return st, nil
}

func (s *Store) writeLocked(st state) error {
	if err := utils.IsSymlink(s.path); err != nil {
		return err
	}
	content, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling IPC state: %w", err)
	}
	if err := os.WriteFile(s.path, content, 0o600); err != nil {
		return fmt.Errorf("writing IPC state file: %w", err)
	}
	return nil
}

// LastRefreshTime returns the timestamp of the agent's last refresh
// tick, or the zero time if none has happened yet.
func (s *Store) LastRefreshTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.readLocked()
	if err != nil {
		return time.Time{}, err
	}
	if st.LastRefreshTime == nil {
		return time.Time{}, nil
	}
	return *st.LastRefreshTime, nil
}

// RecordRefresh stamps the last refresh time, called by the FSM once
// per tick.
func (s *Store) RecordRefresh(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.readLocked()
	if err != nil {
		return err
	}
	st.LastRefreshTime = &at
	return s.writeLocked(st)
}

// RequestCheckUpdate sets the out-of-band "check for updates now"
// flag; ConsumeCheckUpdateRequest reports and clears it. The agent's
// tick does not read this flag.
func (s *Store) RequestCheckUpdate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.readLocked()
	if err != nil {
		return err
	}
	st.CheckUpdateRequested = true
	return s.writeLocked(st)
}

// ConsumeCheckUpdateRequest reports whether a check-update request is
// pending and clears it.
func (s *Store) ConsumeCheckUpdateRequest() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.readLocked()
	if err != nil {
		return false, err
	}
	if !st.CheckUpdateRequested {
		return false, nil
	}
	st.CheckUpdateRequested = false
	return true, s.writeLocked(st)
}

// RequestFinalizeUpdate flags an out-of-band "finalize the staged
// update now" request; force bypasses the active strategy's
// CanFinalize gate.
func (s *Store) RequestFinalizeUpdate(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.readLocked()
	if err != nil {
		return err
	}
	st.FinalizeRequested = true
	st.FinalizeForce = force
	return s.writeLocked(st)
}

// ConsumeFinalizeRequest reports whether a finalize request is
// pending (and whether it was forced), and clears it.
func (s *Store) ConsumeFinalizeRequest() (requested, force bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.readLocked()
	if err != nil {
		return false, false, err
	}
	if !st.FinalizeRequested {
		return false, false, nil
	}
	requested, force = true, st.FinalizeForce
	st.FinalizeRequested, st.FinalizeForce = false, false
	if err := s.writeLocked(st); err != nil {
		return false, false, err
	}
	log.Debugf("consumed finalize-update request, force=%v", force)
	return requested, force, nil
}
