// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// edge-desktop is the desktop client for the edge tunnel. It keeps a
// live copy of the data service's session state and drives the
// monitor service through start, stop and upgrade.
//
// With a terminal it runs an interactive window; with --plain, or
// when stdout is not a terminal, it logs state changes and alerts
// instead. The process exits 0 when the monitor announces an
// upgrade so the installer can replace the binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/config"
	"github.com/bureau-foundation/edge-desktop/lib/coordinator"
	"github.com/bureau-foundation/edge-desktop/lib/dataclient"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/monitorclient"
	"github.com/bureau-foundation/edge-desktop/lib/process"
	"github.com/bureau-foundation/edge-desktop/lib/releasecheck"
	"github.com/bureau-foundation/edge-desktop/lib/service"
	"github.com/bureau-foundation/edge-desktop/lib/trayui"
	"github.com/bureau-foundation/edge-desktop/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// defaultLogFile is the --log-file value when the flag is given
// without one.
const defaultLogFile = "\x00state-dir"

type options struct {
	configPath    string
	logLevel      string
	logFile       string
	dataSocket    string
	monitorSocket string
	plain         bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("edge-desktop", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to edge-desktop.yaml (default: $"+config.EnvVar+", then built-in defaults)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "client log level: FATAL, ERROR, WARN, INFO, DEBUG, VERBOSE or TRACE")
	flagSet.StringVar(&opts.logFile, "log-file", "", "also write JSON log records to this file (no value: edge-desktop.log in the state directory)")
	flagSet.Lookup("log-file").NoOptDefVal = defaultLogFile
	flagSet.StringVar(&opts.dataSocket, "data-socket", "", "data service socket path (overrides config)")
	flagSet.StringVar(&opts.monitorSocket, "monitor-socket", "", "monitor service socket path (overrides config)")
	flagSet.BoolVar(&opts.plain, "plain", false, "log state changes instead of running the interactive window")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return &process.UsageError{Err: err}
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if *showVersion {
		fmt.Println("edge-desktop " + version.Full())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return &process.UsageError{Err: fmt.Errorf("unexpected argument: %s", args[0])}
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return &process.UsageError{Err: err}
	}
	durations, err := cfg.Durations()
	if err != nil {
		return &process.UsageError{Err: err}
	}
	level, err := cfg.Level()
	if err != nil {
		return &process.UsageError{Err: err}
	}

	if opts.logFile == defaultLogFile {
		if err := cfg.EnsureStateDir(); err != nil {
			return err
		}
		opts.logFile = cfg.LogFilePath()
	}

	if !opts.plain && !term.IsTerminal(int(os.Stdout.Fd())) {
		opts.plain = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	levelVar := new(slog.LevelVar)
	levelVar.Set(level.Slog())

	var handlers trayui.FanoutHandler
	var tuiHandler *trayui.TUILogHandler
	if opts.plain {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	} else {
		// Warnings and errors go to the status line; stderr would
		// corrupt the alt screen.
		tuiHandler = trayui.NewTUILogHandler(maxLevel{levelVar, slog.LevelWarn})
		handlers = append(handlers, tuiHandler)
	}
	if opts.logFile != "" {
		fileHandler, closeFile, err := openFileLogHandler(opts.logFile, levelVar)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", opts.logFile, err)
		}
		defer closeFile()
		handlers = append(handlers, fileHandler)
	}
	logger := slog.New(handlers)
	slog.SetDefault(logger)

	realClock := clock.Real()

	var checker monitorclient.VersionChecker
	if cfg.ReleaseCheck.Enabled {
		checker = releasecheck.New(releasecheck.Config{URL: cfg.ReleaseCheck.URL, Logger: logger})
	}

	data := dataclient.New(dataclient.Config{
		Endpoint:       cfg.DataService,
		Clock:          realClock,
		Logger:         logger,
		InitialBackoff: durations.InitialBackoff,
		MaxBackoff:     durations.MaxBackoff,
	})
	defer data.Close()

	monitor := monitorclient.New(monitorclient.Config{
		Endpoint:       cfg.MonitorService,
		Clock:          realClock,
		Logger:         logger,
		InitialBackoff: durations.InitialBackoff,
		MaxBackoff:     durations.MaxBackoff,
		VersionChecker: checker,
	})
	defer monitor.Close()

	coordinatorConfig := coordinator.Config{
		Data:        data,
		Monitor:     monitor,
		Clock:       realClock,
		Logger:      logger,
		LevelVar:    levelVar,
		StopBudget:  durations.StopBudget,
		StopQuantum: durations.StopQuantum,
	}

	logger.Info("edge-desktop starting",
		"version", version.Info(),
		"data_service", cfg.DataService.String(),
		"monitor_service", cfg.MonitorService.String(),
		"log_level", level.String(),
	)

	if opts.plain {
		coordinatorConfig.Presenter = newLogPresenter(logger)
		return finish(coordinator.New(coordinatorConfig).Run(ctx))
	}
	return runWindow(ctx, coordinatorConfig, tuiHandler)
}

// runWindow runs the coordinator under the interactive window. The
// window quits when the coordinator returns, and the coordinator is
// cancelled when the window quits.
func runWindow(ctx context.Context, coordinatorConfig coordinator.Config, tuiHandler *trayui.TUILogHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	presenter := trayui.NewPresenter()
	defer presenter.Close()
	coordinatorConfig.Presenter = presenter
	coord := coordinator.New(coordinatorConfig)

	model := trayui.NewModel(coord, coordinatorConfig.Clock)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	presenter.SetProgram(program)
	tuiHandler.SetProgram(program)

	coordinatorDone := make(chan error, 1)
	go func() {
		err := coord.Run(ctx)
		reason := ""
		if errors.Is(err, coordinator.ErrUpgrading) {
			reason = "The service is being upgraded. edge-desktop will exit."
		}
		program.Send(trayui.ShutdownMsg{Reason: reason})
		coordinatorDone <- err
	}()

	_, programErr := program.Run()
	cancel()
	coordinatorErr := <-coordinatorDone

	if coordinatorErr != nil && !errors.Is(coordinatorErr, context.Canceled) {
		return finish(coordinatorErr)
	}
	if programErr != nil && !errors.Is(programErr, tea.ErrProgramKilled) {
		return programErr
	}
	return nil
}

// finish maps the coordinator's exit to run's result. An upgrade and
// a signal are both clean exits.
func finish(err error) error {
	if err == nil || errors.Is(err, coordinator.ErrUpgrading) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ExpandVariables()
	}
	if err != nil {
		return nil, err
	}

	if opts.dataSocket != "" {
		cfg.DataService = service.UnixEndpoint(opts.dataSocket)
	}
	if opts.monitorSocket != "" {
		cfg.MonitorService = service.UnixEndpoint(opts.monitorSocket)
	}
	if opts.logLevel != "" {
		level, err := loglevel.Parse(opts.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// maxLevel enables records at the higher of two levels.
type maxLevel struct {
	base  slog.Leveler
	floor slog.Level
}

func (m maxLevel) Level() slog.Level {
	return max(m.base.Level(), m.floor)
}

// openFileLogHandler appends JSON records to path.
func openFileLogHandler(path string, level slog.Leveler) (slog.Handler, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return handler, func() { file.Close() }, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `edge-desktop: desktop client for the edge tunnel.

Connects to the data service and the monitor service, shows enrolled
identities and their services, and controls the tunnel.

Usage:
  edge-desktop [flags]

Examples:
  # Run against the installed services
  edge-desktop

  # Run against a development mock
  edge-mock-service --dir /tmp/edge &
  edge-desktop --data-socket /tmp/edge/data.sock --monitor-socket /tmp/edge/monitor.sock

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
