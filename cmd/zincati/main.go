// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Command zincati is the update agent binary: it loads configuration,
// wires the agent FSM to its collaborators, and runs the FSM until
// told to stop. Grounded on the reference agent's main.go wiring shape
// (flag parsing, config load, logger level, collaborator construction,
// then a blocking run loop under a cancellable context) adapted from
// the teacher's INBM-specific collaborators to this system's
// Cincinnati/OSTree ones.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/coreos/zincati/internal/agent"
	"github.com/coreos/zincati/internal/calendar"
	"github.com/coreos/zincati/internal/cincinnati"
	"github.com/coreos/zincati/internal/comms"
	"github.com/coreos/zincati/internal/config"
	"github.com/coreos/zincati/internal/deadend"
	"github.com/coreos/zincati/internal/fleetlock"
	"github.com/coreos/zincati/internal/identity"
	"github.com/coreos/zincati/internal/ipc"
	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/metrics"
	"github.com/coreos/zincati/internal/osmanager"
	"github.com/coreos/zincati/internal/resolver"
	"github.com/coreos/zincati/internal/scheduler"
	"github.com/coreos/zincati/internal/session"
	"github.com/coreos/zincati/internal/strategy"
	"github.com/coreos/zincati/internal/trigger"
	"github.com/coreos/zincati/internal/utils"
)

const (
	defaultConfigDir  = "/etc/zincati/config.d"
	defaultStatePath  = "/var/lib/zincati/state.json"
	configRescanEvery = 60 * time.Second
	heartbeatEvery    = 60 * time.Second
)

var log = logger.Logger()

func init() {
	flag.String("config-dir", defaultConfigDir, "Configuration directory, scanned for *.yaml/*.yml fragments")
	flag.String("state-path", defaultStatePath, "Path to the local IPC state file")
}

func main() {
	flag.Parse()
	configDir := flag.Lookup("config-dir").Value.String()
	statePath := flag.Lookup("state-path").Value.String()

	log.Infof("starting zincati, config-dir=%s", configDir)

	if os.Geteuid() != 0 {
		log.Error("zincati must run as root to drive rpm-ostree and loginctl")
		os.Exit(1)
	}

	cfg, err := config.NewFromDir(configDir)
	if err != nil {
		log.Errorf("unable to load configuration: %v", err)
		os.Exit(1)
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, configDir, statePath); err != nil {
		log.Errorf("fatal startup error: %v", err)
		os.Exit(1)
	}
	log.Info("zincati exiting cleanly")
}

func setLogLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.Logger.SetLevel(parsed)
}

// run performs all collaborator construction and blocks running the
// FSM until ctx is cancelled or the FSM reaches End.
func run(ctx context.Context, cfg *config.Config, configDir, statePath string) error {
	metricsReg := metrics.New(prometheus.DefaultRegisterer)

	osMgr := osmanager.NewWithDefaults()
	if err := osMgr.RegisterAsDriver(ctx); err != nil {
		return fmt.Errorf("registering as rpm-ostree automatic-update driver: %w", err)
	}

	id, err := identity.TryDefault(&utils.RealFileReader{}, identity.Config{
		Group:            cfg.Identity.Group,
		NodeUUID:         cfg.Identity.NodeUUID,
		ThrottlePermille: cfg.Identity.ThrottlePermille,
	})
	if err != nil {
		return fmt.Errorf("deriving node identity: %w", err)
	}
	log.Infof("node identity: group=%s node_uuid=%s stream=%s basearch=%s", id.Group, id.NodeUUID, id.Stream, id.Basearch)

	booted, err := osMgr.BootedDeployment(ctx)
	if err != nil {
		return fmt.Errorf("determining booted deployment: %w", err)
	}

	deadendState := deadend.New()
	deadendWriter := deadend.NewWriter(afero.NewOsFs())

	strat, err := newStrategy(cfg, id, metricsReg)
	if err != nil {
		return fmt.Errorf("building update strategy: %w", err)
	}

	trig, remoteTrig, err := newTrigger(cfg, id, booted, osMgr, deadendState, deadendWriter)
	if err != nil {
		return fmt.Errorf("building update trigger: %w", err)
	}

	if err := os.MkdirAll(parentDir(statePath), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	ipcStore, err := ipc.NewStore(statePath)
	if err != nil {
		return fmt.Errorf("opening IPC state file: %w", err)
	}

	sessionProber := session.NewProber(utils.NewExecutor[exec.Cmd](exec.Command, utils.ExecuteAndReadOutput))
	broadcaster := session.NewBroadcaster(nil, nil)

	ag := agent.New(buildAgentConfig(cfg), strat, trig, osMgr, sessionProber, broadcaster, ipcStore, metricsReg)

	aux := scheduler.New()
	defer aux.Stop()

	if err := aux.ScheduleConfigRescan(configRescanEvery, rescanConfig(configDir)); err != nil {
		return fmt.Errorf("scheduling config rescan: %w", err)
	}

	var commsClient *comms.Client
	if cfg.Trigger.Mode == "remote" {
		commsClient = comms.ConnectWithRetry(ctx, cfg.Trigger.RemoteAddr, nil)
		if commsClient == nil {
			log.Warn("cancelled before connecting to fleet coordinator")
		} else if err := aux.ScheduleHeartbeat(heartbeatEvery, reportHeartbeat(ctx, commsClient, id, ag, remoteTrig)); err != nil {
			return fmt.Errorf("scheduling readiness heartbeat: %w", err)
		}
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debugf("sd_notify readiness push failed (likely not running under systemd): %v", err)
	} else if ok {
		log.Debug("sent systemd readiness notification")
	}

	ag.Run(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}

// buildAgentConfig translates the validated, defaulted config sections
// into the FSM's own Config, leaving the package-wide counter bounds
// untouched (they are not operator-tunable per §6).
func buildAgentConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		Enabled:                  cfg.Updates.IsEnabled(),
		RefreshPeriod:            time.Duration(cfg.Agent.RefreshPeriodSecs) * time.Second,
		SteadyInterval:           time.Duration(cfg.Agent.SteadyIntervalSecs) * time.Second,
		PostponementTime:         time.Duration(cfg.Agent.PostponementTimeSecs) * time.Second,
		MaxDeployAttempts:        config.MaxDeployAttempts,
		MaxFinalizePostponements: config.MaxFinalizePostponements,
	}
}

// buildCalendar turns the periodic strategy's configured intervals into
// a calendar.Calendar, validating each interval via calendar.ParseTimespan.
func buildCalendar(intervals []config.IntervalConfig) (*calendar.Calendar, error) {
	cal := calendar.New()
	for _, iv := range intervals {
		weekday, err := calendar.WeekdayFromString(iv.Weekday)
		if err != nil {
			return nil, fmt.Errorf("invalid periodic interval weekday: %w", err)
		}
		windows, err := calendar.ParseTimespan(weekday, iv.Hour, iv.Minute, time.Duration(iv.LengthMinutes)*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("invalid periodic interval: %w", err)
		}
		for _, w := range windows {
			cal.AddWindow(w)
		}
	}
	return cal, nil
}

// newStrategy builds the Strategy variant selected by cfg.Updates.Strategy.
func newStrategy(cfg *config.Config, id *identity.Identity, m *metrics.Registry) (agent.Strategy, error) {
	switch cfg.Updates.Strategy {
	case "immediate":
		return strategy.NewImmediate(cfg.Updates.Immediate.FetchUpdates, cfg.Updates.Immediate.FinalizeUpdates, m), nil
	case "periodic":
		cal, err := buildCalendar(cfg.Updates.Periodic.Intervals)
		if err != nil {
			return nil, err
		}
		return strategy.NewPeriodic(cal, m)
	case "fleet_lock":
		baseURL := config.ExpandTemplate(cfg.Updates.FleetLock.BaseURL, id.URLVariables())
		flClient, err := fleetlock.NewClient(baseURL, fleetlock.ClientParameters{ID: id.NodeUUID.String(), Group: id.Group}, nil)
		if err != nil {
			return nil, err
		}
		return strategy.NewFleetLock(flClient, m), nil
	default:
		return nil, fmt.Errorf("unknown update strategy %q", cfg.Updates.Strategy)
	}
}

// newTrigger builds the Trigger variant selected by cfg.Trigger.Mode. For
// the remote variant it also returns the concrete *trigger.Remote so the
// readiness heartbeat can push releases into it.
func newTrigger(cfg *config.Config, id *identity.Identity, booted resolver.Booted, osMgr *osmanager.Manager, deadendState *deadend.State, deadendWriter *deadend.Writer) (agent.Trigger, *trigger.Remote, error) {
	switch cfg.Trigger.Mode {
	case "remote":
		remoteTrig := trigger.NewRemote()
		return remoteTrig, remoteTrig, nil
	case "cincinnati", "":
		baseURL := config.ExpandTemplate(cfg.Cincinnati.BaseURL, id.URLVariables())
		cincClient, err := cincinnati.NewClient(baseURL, cincinnati.WithQueryParams(trigger.URLVariablesOf(id)))
		if err != nil {
			return nil, nil, fmt.Errorf("building update-graph client: %w", err)
		}
		return trigger.NewCincinnati(cincClient, booted, osMgr, cfg.Updates.AllowDowngrade, deadendState, deadendWriter), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown trigger mode %q", cfg.Trigger.Mode)
	}
}

// rescanConfig reloads configDir on every config-rescan tick and logs a
// load failure, which is non-fatal since the process already has a
// validated configuration to keep operating on. The reloaded
// configuration is discarded; it is not compared with or applied to the
// running collaborators.
func rescanConfig(configDir string) func() {
	return func() {
		if _, err := config.NewFromDir(configDir); err != nil {
			log.Warnf("config rescan of %s failed, keeping previous configuration: %v", configDir, err)
		}
	}
}

// reportHeartbeat pushes the agent's current FSM position to the fleet
// coordinator and, if a release comes back, hands it to remoteTrig so
// the FSM's next tick picks it up.
func reportHeartbeat(ctx context.Context, client *comms.Client, id *identity.Identity, ag *agent.Agent, remoteTrig *trigger.Remote) func() {
	return func() {
		state := ag.State()
		report := comms.StatusReport{
			Discriminant: state.Discriminant.String(),
			Version:      id.CurrentVersion,
		}
		if state.Release != nil {
			report.Version = state.Release.Version
		}
		rel, err := client.ReportStatus(ctx, id.NodeUUID.String(), report)
		if err != nil {
			log.Warnf("readiness heartbeat to fleet coordinator failed: %v", err)
			return
		}
		if rel != nil {
			remoteTrig.Push(rel)
		}
	}
}

func parentDir(path string) string {
	idx := len(path) - 1
	for idx >= 0 && path[idx] != '/' {
		idx--
	}
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
