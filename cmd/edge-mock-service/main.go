// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// edge-mock-service serves the in-memory data and monitor services
// on two Unix sockets, for running edge-desktop without an installed
// tunnel. Stopping the data service through the monitor drops every
// data subscription, as the real service does when it exits.
//
// With --token, it also writes an enrollment token the mock accepts
// to <dir>/<subject>.jwt.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/edge-desktop/lib/edgetest"
	"github.com/bureau-foundation/edge-desktop/lib/process"
	"github.com/bureau-foundation/edge-desktop/lib/service"
	"github.com/bureau-foundation/edge-desktop/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		dir             string
		logDir          string
		releaseStream   string
		tokenSubject    string
		controllerURL   string
		stopPolls       int
		apiVersion      int
		metricsInterval time.Duration
		verbose         bool
	)
	flagSet := pflag.NewFlagSet("edge-mock-service", pflag.ContinueOnError)
	flagSet.StringVar(&dir, "dir", "", "directory for data.sock and monitor.sock (required)")
	flagSet.StringVar(&logDir, "log-dir", "", "directory for capture-logs bundles (default: capture-logs fails)")
	flagSet.StringVar(&releaseStream, "release-stream", "stable", "release stream reported by the monitor")
	flagSet.StringVar(&tokenSubject, "token", "", "write an enrollment token for this subject into --dir")
	flagSet.StringVar(&controllerURL, "controller", "https://controller.edge.test:1280", "controller URL for --token")
	flagSet.IntVar(&stopPolls, "stop-polls", 2, "status queries answered StopPending after a stop")
	flagSet.IntVar(&apiVersion, "api-version", 0, "API version in status frames (default: the client's)")
	flagSet.DurationVar(&metricsInterval, "metrics-interval", time.Second, "metrics frame interval (0 disables)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &process.UsageError{Err: err}
	}
	if *showVersion {
		fmt.Println("edge-mock-service " + version.Info())
		return nil
	}
	if dir == "" {
		return &process.UsageError{Err: errors.New("--dir is required")}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if tokenSubject != "" {
		path, err := writeToken(dir, controllerURL, tokenSubject)
		if err != nil {
			return err
		}
		logger.Info("wrote enrollment token", "path", path,
			"fingerprint", edgetest.Fingerprint(controllerURL, tokenSubject))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data := edgetest.NewDataService(edgetest.DataConfig{
		Logger:          logger.With("service", "data"),
		APIVersion:      apiVersion,
		MetricsInterval: metricsInterval,
	})
	monitor := edgetest.NewMonitorService(edgetest.MonitorConfig{
		Logger:        logger.With("service", "monitor"),
		LogDir:        logDir,
		ReleaseStream: releaseStream,
		StopPolls:     stopPolls,
		OnStop:        data.Shutdown,
	})

	dataEndpoint := service.UnixEndpoint(filepath.Join(dir, "data.sock"))
	monitorEndpoint := service.UnixEndpoint(filepath.Join(dir, "monitor.sock"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, 2)
	go func() { errs <- data.Serve(ctx, dataEndpoint, nil) }()
	go func() { errs <- monitor.Serve(ctx, monitorEndpoint, nil) }()

	logger.Info("serving",
		"data", dataEndpoint.String(),
		"monitor", monitorEndpoint.String(),
	)

	// Either server failing stops the other.
	first := <-errs
	cancel()
	second := <-errs
	return errors.Join(first, second)
}

func writeToken(dir, controllerURL, subject string) (string, error) {
	token, err := edgetest.EnrollmentToken(controllerURL, subject)
	if err != nil {
		return "", fmt.Errorf("building enrollment token: %w", err)
	}
	path := filepath.Join(dir, subject+".jwt")
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}
