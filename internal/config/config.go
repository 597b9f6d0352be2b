// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the agent's YAML configuration,
// grounded on the reference agent's config.Config load/setDefaults/
// validate trio: symlink-checked before reading, unmarshalled with
// yaml.v3, defaulted, then validated — the same three-step shape, now
// carrying the domain's Cincinnati/Identity/Updates/Agent/Trigger
// sections instead of the teacher's flat INBM-specific fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/utils"

	yaml "gopkg.in/yaml.v3"
)

var log = logger.Logger()

const (
	// DefaultRefreshPeriod is the delay before the next tick when a tick
	// leaves the state discriminant unchanged, until ReportedSteady has
	// been reached.
	DefaultRefreshPeriod = 300 * time.Second
	// DefaultSteadyInterval replaces DefaultRefreshPeriod as that delay
	// once ReportedSteady has been reached.
	DefaultSteadyInterval = 300 * time.Second
	// DefaultPostponementTime is the per-postponement time used to
	// estimate the reboot delay announced in finalization warnings; it
	// does not change the tick delay.
	DefaultPostponementTime = 60 * time.Second
	// MaxDeployAttempts bounds consecutive failed stage attempts for a
	// single release before the agent gives up on it.
	MaxDeployAttempts = 12
	// MaxFinalizePostponements bounds how many times finalization may be
	// postponed for a single staged release.
	MaxFinalizePostponements = 10
)

// CincinnatiConfig configures the update-graph client.
type CincinnatiConfig struct {
	// BaseURL may be templated with ${stream}, ${basearch}, ${platform},
	// ${group}, ${node_uuid}, substituted from Identity.
	BaseURL string `yaml:"baseURL"`
}

// IdentityConfig carries operator overrides of the derived Identity.
type IdentityConfig struct {
	Group            string  `yaml:"group"`
	NodeUUID         string  `yaml:"nodeUUID"`
	ThrottlePermille *uint16 `yaml:"throttlePermille"`
}

// IntervalConfig is one weekly recurring window for the periodic
// strategy.
type IntervalConfig struct {
	Weekday       string `yaml:"weekday"`
	Hour          int    `yaml:"hour"`
	Minute        int    `yaml:"minute"`
	LengthMinutes int    `yaml:"lengthMinutes"`
}

// ImmediateConfig configures the immediate strategy.
type ImmediateConfig struct {
	FetchUpdates    bool `yaml:"fetchUpdates"`
	FinalizeUpdates bool `yaml:"finalizeUpdates"`
}

// PeriodicConfig configures the periodic strategy.
type PeriodicConfig struct {
	Intervals []IntervalConfig `yaml:"intervals"`
}

// FleetLockConfig configures the fleet_lock strategy.
type FleetLockConfig struct {
	// BaseURL may be templated the same way as Cincinnati.BaseURL.
	BaseURL string `yaml:"baseURL"`
}

// UpdatesConfig selects and configures the active update strategy.
type UpdatesConfig struct {
	Strategy       string          `yaml:"strategy"`
	AllowDowngrade bool            `yaml:"allowDowngrade"`
	// Enabled is a pointer so "omitted" (default true) is distinguishable
	// from an explicit "enabled: false".
	Enabled   *bool           `yaml:"enabled"`
	Immediate ImmediateConfig `yaml:"immediate"`
	Periodic  PeriodicConfig  `yaml:"periodic"`
	FleetLock FleetLockConfig `yaml:"fleetLock"`
}

// IsEnabled reports whether updates are enabled, defaulting to true.
func (u UpdatesConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// AgentConfig overrides the FSM's tick cadence and postponement
// pacing, all optional.
type AgentConfig struct {
	RefreshPeriodSecs   int `yaml:"refreshPeriodSecs"`
	SteadyIntervalSecs  int `yaml:"steadyIntervalSecs"`
	PostponementTimeSecs int `yaml:"postponementTimeSecs"`
}

// TriggerConfig selects how the agent learns it should check for
// updates.
type TriggerConfig struct {
	Mode       string `yaml:"mode"`
	RemoteAddr string `yaml:"remoteAddr"`
}

// Config is the agent's full, validated configuration.
type Config struct {
	LogLevel   string           `yaml:"logLevel"`
	Cincinnati CincinnatiConfig `yaml:"cincinnati"`
	Identity   IdentityConfig   `yaml:"identity"`
	Updates    UpdatesConfig    `yaml:"updates"`
	Agent      AgentConfig      `yaml:"agent"`
	Trigger    TriggerConfig    `yaml:"trigger"`
}

// New loads, defaults, and validates the configuration at cfgPath.
func New(cfgPath string) (*Config, error) {
	log.Infoln("Config path", cfgPath)

	if err := utils.IsSymlink(cfgPath); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(cfgPath)
	if err != nil {
		log.Errorf("Loading config failed: %v", err)
		return nil, err
	}

	cfg := Config{Updates: UpdatesConfig{Immediate: ImmediateConfig{FetchUpdates: true, FinalizeUpdates: true}}}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		log.Errorf("Unmarshaling failed: %v", err)
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		log.Errorf("Config validation failed: %v", err)
		return nil, err
	}

	log.Debugf("Loaded configuration: %+v", cfg)
	return &cfg, nil
}

// NewFromDir loads and merges every *.yaml/*.yml fragment in dir, in
// sorted filename order (later fragments override earlier ones, field
// by field), then defaults and validates the result. Used both at
// startup and by the periodic config-rescan job; the rescan only
// re-validates dir, and the running agent keeps the configuration it
// loaded at startup.
func NewFromDir(dir string) (*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(e.Name())); ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	cfg := Config{Updates: UpdatesConfig{Immediate: ImmediateConfig{FetchUpdates: true, FinalizeUpdates: true}}}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := utils.IsSymlink(path); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config fragment %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling config fragment %s: %w", path, err)
		}
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		log.Errorf("Config validation failed: %v", err)
		return nil, err
	}
	log.Debugf("Loaded configuration from %s: %+v", dir, cfg)
	return &cfg, nil
}

// ExpandTemplate substitutes ${name} placeholders in template with the
// corresponding entry from vars, leaving unrecognised placeholders
// empty — used to resolve cincinnati.baseURL and updates.fleetLock.baseURL
// against the node's identity.
func ExpandTemplate(template string, vars map[string]string) string {
	return os.Expand(template, func(name string) string {
		return vars[name]
	})
}

func (cfg *Config) setDefaults() {
	if cfg.Updates.Strategy == "" {
		cfg.Updates.Strategy = "immediate"
	}
	if cfg.Trigger.Mode == "" {
		cfg.Trigger.Mode = "cincinnati"
	}
	if cfg.Agent.RefreshPeriodSecs == 0 {
		cfg.Agent.RefreshPeriodSecs = int(DefaultRefreshPeriod.Seconds())
	}
	if cfg.Agent.SteadyIntervalSecs == 0 {
		cfg.Agent.SteadyIntervalSecs = int(DefaultSteadyInterval.Seconds())
	}
	if cfg.Agent.PostponementTimeSecs == 0 {
		cfg.Agent.PostponementTimeSecs = int(DefaultPostponementTime.Seconds())
	}
	if cfg.Identity.Group == "" {
		cfg.Identity.Group = "default"
	}
}

func (cfg *Config) validate() error {
	if cfg.Cincinnati.BaseURL == "" {
		return fmt.Errorf("cincinnati.baseURL is required")
	}

	switch cfg.Updates.Strategy {
	case "immediate", "periodic", "fleet_lock":
	default:
		return fmt.Errorf("updates.strategy must be one of immediate, periodic, fleet_lock, got %q", cfg.Updates.Strategy)
	}
	if cfg.Updates.Strategy == "periodic" && len(cfg.Updates.Periodic.Intervals) == 0 {
		return fmt.Errorf("updates.periodic.intervals must have at least one entry when strategy is periodic")
	}
	if cfg.Updates.Strategy == "fleet_lock" && cfg.Updates.FleetLock.BaseURL == "" {
		return fmt.Errorf("updates.fleetLock.baseURL is required when strategy is fleet_lock")
	}

	switch cfg.Trigger.Mode {
	case "cincinnati", "remote":
	default:
		return fmt.Errorf("trigger.mode must be one of cincinnati, remote, got %q", cfg.Trigger.Mode)
	}
	if cfg.Trigger.Mode == "remote" && cfg.Trigger.RemoteAddr == "" {
		return fmt.Errorf("trigger.remoteAddr is required when trigger.mode is remote")
	}

	if cfg.Agent.RefreshPeriodSecs < 0 {
		return fmt.Errorf("agent.refreshPeriodSecs cannot be negative")
	}
	if cfg.Agent.SteadyIntervalSecs < 0 {
		return fmt.Errorf("agent.steadyIntervalSecs cannot be negative")
	}
	if cfg.Agent.PostponementTimeSecs < 0 {
		return fmt.Errorf("agent.postponementTimeSecs cannot be negative")
	}

	return nil
}
