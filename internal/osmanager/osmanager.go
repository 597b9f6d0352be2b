// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package osmanager wraps the rpm-ostree CLI, the OS manager contract
// of §6: query local deployments, stage an update, finalize (reboot
// into) a staged deployment. Grounded on the teacher's installer.Installer
// — same utils.Executor + k8s.io/apimachinery wait.PollUntilContextTimeout
// idiom for a long-running, poll-until-done external command — adapted
// from INBM's apt/dispatcher commands to rpm-ostree's deploy/status/
// finalize-deployment surface.
package osmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/release"
	"github.com/coreos/zincati/internal/resolver"
	"github.com/coreos/zincati/internal/utils"
)

var log = logger.Logger()

const (
	statusPollInterval = 5 * time.Second
	statusPollTimeout  = 15 * time.Minute
)

// Deployment is one entry of `rpm-ostree status --json`.
type Deployment struct {
	Checksum string `json:"checksum"`
	Version  string `json:"version"`
	Booted   bool   `json:"booted"`
	Staged   bool   `json:"staged"`
	// ContainerImageReference is populated for OCI-scheme deployments.
	ContainerImageReference string `json:"container-image-reference"`
}

type rpmOstreeStatus struct {
	Deployments []Deployment `json:"deployments"`
}

// Manager drives rpm-ostree to stage, finalize, and query local
// deployments.
type Manager struct {
	executor     utils.Executor
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// New builds a Manager around executor.
func New(executor utils.Executor) *Manager {
	return &Manager{executor: executor, pollInterval: statusPollInterval, pollTimeout: statusPollTimeout}
}

// NewWithDefaults builds a Manager invoking the real rpm-ostree binary.
func NewWithDefaults() *Manager {
	return New(utils.NewExecutor[exec.Cmd](exec.Command, utils.ExecuteAndReadOutput))
}

// QueryLocalDeployments lists the deployments rpm-ostree currently
// knows about — used by the resolver to build the deny list of
// already-tried releases.
func (m *Manager) QueryLocalDeployments(ctx context.Context) ([]Deployment, error) {
	out, err := m.executor.Execute([]string{"rpm-ostree", "status", "--json"})
	if err != nil {
		return nil, fmt.Errorf("failed to query rpm-ostree status: %w", err)
	}
	var status rpmOstreeStatus
	if err := json.Unmarshal(out, &status); err != nil {
		return nil, fmt.Errorf("failed to parse rpm-ostree status output: %w", err)
	}
	return status.Deployments, nil
}

// DenyList converts the local, non-booted deployments into a
// release.DenyList, so the resolver never re-selects a release already
// present but not currently running (e.g. a rolled-back update).
func (m *Manager) DenyList(ctx context.Context) (release.DenyList, error) {
	deployments, err := m.QueryLocalDeployments(ctx)
	if err != nil {
		return nil, err
	}
	var deny release.DenyList
	for _, d := range deployments {
		if d.Booted {
			continue
		}
		if d.ContainerImageReference != "" {
			deny = append(deny, release.New(d.Version, d.ContainerImageReference, release.SchemeOCI, nil))
			continue
		}
		deny = append(deny, release.New(d.Version, d.Checksum, release.SchemeChecksum, nil))
	}
	return deny, nil
}

// BootedDeployment locates the currently running deployment and
// converts it to a resolver.Booted descriptor used to find the
// corresponding node in the update graph.
func (m *Manager) BootedDeployment(ctx context.Context) (resolver.Booted, error) {
	deployments, err := m.QueryLocalDeployments(ctx)
	if err != nil {
		return resolver.Booted{}, err
	}
	for _, d := range deployments {
		if !d.Booted {
			continue
		}
		if d.ContainerImageReference != "" {
			return resolver.Booted{Scheme: release.SchemeOCI, ImageReference: d.ContainerImageReference}, nil
		}
		return resolver.Booted{Scheme: release.SchemeChecksum, Checksum: d.Checksum}, nil
	}
	return resolver.Booted{}, fmt.Errorf("no booted deployment found in rpm-ostree status")
}

// StageDeployment pulls and stages rel without rebooting into it.
func (m *Manager) StageDeployment(ctx context.Context, rel release.Release) error {
	args := []string{"rpm-ostree", "deploy", "--lock-finalization"}
	if rel.Scheme == release.SchemeOCI {
		args = append(args, "--register-driver=zincati", rel.ReferenceID())
	} else {
		args = append(args, rel.ReferenceID())
	}
	if _, err := m.executor.Execute(args); err != nil {
		return fmt.Errorf("failed to stage deployment %s: %w", rel.Version, err)
	}
	log.Infof("staged deployment %s (%s)", rel.Version, rel.ReferenceID())
	return nil
}

// FinalizeDeployment unlocks and applies a previously staged
// deployment, which triggers a reboot into it.
func (m *Manager) FinalizeDeployment(ctx context.Context) error {
	if _, err := m.executor.Execute([]string{"rpm-ostree", "finalize-deployment", "--reboot"}); err != nil {
		return fmt.Errorf("failed to finalize staged deployment: %w", err)
	}
	return nil
}

// RegisterAsDriver waits for rpm-ostree to become responsive: it polls
// `rpm-ostree status --json` until a call succeeds or the timeout
// elapses, mirroring the teacher's poll-until-done idiom. It does not
// itself register this agent as rpm-ostree's update driver; the only
// driver registration is the --register-driver=zincati flag that
// StageDeployment passes for OCI-scheme releases.
func (m *Manager) RegisterAsDriver(ctx context.Context) error {
	check := func(ctx context.Context) (bool, error) {
		if _, err := m.executor.Execute([]string{"rpm-ostree", "status", "--json"}); err != nil {
			log.Warnf("rpm-ostree not yet responsive while registering as driver: %v", err)
			return false, nil
		}
		return true, nil
	}
	if err := wait.PollUntilContextTimeout(ctx, m.pollInterval, m.pollTimeout, true, check); err != nil {
		return fmt.Errorf("failed to register as rpm-ostree automatic-update driver: %w", err)
	}
	return nil
}
