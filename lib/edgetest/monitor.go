// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package edgetest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/service"
)

// MonitorConfig configures a MonitorService.
type MonitorConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// LogDir receives capture-logs bundles. Empty makes
	// capture-logs fail with ipc.CodeCommandFailed.
	LogDir string

	ReleaseStream string

	// StopPolls is how many status queries after a stop still
	// answer StopPending before the service reports Stopped.
	StopPolls int

	// OnStart and OnStop run after the data service is started or
	// reaches Stopped, outside the monitor's lock.
	OnStart func()
	OnStop  func()
}

// MonitorService is an in-memory service-lifecycle monitor.
type MonitorService struct {
	config    MonitorConfig
	logger    *slog.Logger
	broadcast *broadcaster

	mu            sync.Mutex
	status        string
	logLevel      loglevel.Level
	pendingPolls  int
	stuck         bool
	statusQueries int
	captures      int
	failures      map[string]ipc.MonitorStatus
}

// NewMonitorService returns a monitor reporting the data service as
// Running.
func NewMonitorService(config MonitorConfig) *MonitorService {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ReleaseStream == "" {
		config.ReleaseStream = "stable"
	}
	return &MonitorService{
		config:    config,
		logger:    config.Logger.With("mock", "monitor"),
		broadcast: newBroadcaster(),
		status:    "Running",
		logLevel:  loglevel.Info,
		failures:  make(map[string]ipc.MonitorStatus),
	}
}

// Register installs the monitor actions on server.
func (m *MonitorService) Register(server *service.SocketServer) {
	server.HandleStream(ipc.ActionSubscribe, m.handleSubscribe)
	server.Handle(ipc.ActionStatus, m.handleStatus)
	server.Handle(ipc.ActionStart, m.handleStart)
	server.Handle(ipc.ActionStop, m.handleStop)
	server.Handle(ipc.ActionForceTerminate, m.handleForceTerminate)
	server.Handle(ipc.ActionCaptureLogs, m.handleCaptureLogs)
	server.Handle(ipc.ActionSetLogLevel, m.handleSetLogLevel)
}

// Serve runs the monitor on endpoint until ctx is cancelled.
func (m *MonitorService) Serve(ctx context.Context, endpoint service.Endpoint, ready chan<- struct{}) error {
	server := service.NewSocketServer(endpoint, m.logger)
	m.Register(server)
	if ready != nil {
		go func() {
			select {
			case <-server.Ready():
				close(ready)
			case <-ctx.Done():
			}
		}()
	}
	return server.Serve(ctx)
}

func (m *MonitorService) handleSubscribe(ctx context.Context, raw []byte, encoder *codec.Encoder) error {
	m.mu.Lock()
	current := m.currentLocked("")
	channel := m.broadcast.add(ipc.Frame{Type: ipc.FrameServiceStatus, Monitor: &current})
	m.mu.Unlock()
	return m.broadcast.serve(ctx, channel, encoder)
}

func (m *MonitorService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	m.mu.Lock()
	m.statusQueries++
	stopped := false
	if m.status == "StopPending" && !m.stuck {
		if m.pendingPolls > 0 {
			m.pendingPolls--
		} else {
			m.status = "Stopped"
			stopped = true
		}
	}
	current := m.currentLocked("")
	m.mu.Unlock()

	if stopped {
		m.stoppedTransition(current)
	}
	return current, nil
}

func (m *MonitorService) handleStart(ctx context.Context, raw []byte) (any, error) {
	if failure, failed := m.takeFailure(ipc.ActionStart); failed {
		return failure, nil
	}
	m.mu.Lock()
	m.status = "Running"
	m.stuck = false
	current := m.currentLocked("")
	m.mu.Unlock()

	m.logger.Info("data service started")
	m.pushStatus(current)
	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return current, nil
}

func (m *MonitorService) handleStop(ctx context.Context, raw []byte) (any, error) {
	if failure, failed := m.takeFailure(ipc.ActionStop); failed {
		return failure, nil
	}
	m.mu.Lock()
	m.status = "StopPending"
	m.pendingPolls = m.config.StopPolls
	current := m.currentLocked("")
	m.mu.Unlock()

	m.logger.Info("data service stopping")
	m.pushStatus(current)
	return current, nil
}

func (m *MonitorService) handleForceTerminate(ctx context.Context, raw []byte) (any, error) {
	if failure, failed := m.takeFailure(ipc.ActionForceTerminate); failed {
		return failure, nil
	}
	m.mu.Lock()
	m.status = "Stopped"
	m.stuck = false
	current := m.currentLocked("")
	m.mu.Unlock()

	m.logger.Warn("data service force terminated")
	m.stoppedTransition(current)
	return current, nil
}

func (m *MonitorService) handleCaptureLogs(ctx context.Context, raw []byte) (any, error) {
	if failure, failed := m.takeFailure(ipc.ActionCaptureLogs); failed {
		return failure, nil
	}

	m.mu.Lock()
	m.captures++
	sequence := m.captures
	current := m.currentLocked("")
	m.mu.Unlock()

	if m.config.LogDir == "" {
		current.Code = ipc.CodeCommandFailed
		current.Message = "could not capture logs"
		current.Error = "no log directory configured"
		return current, nil
	}

	path := filepath.Join(m.config.LogDir, fmt.Sprintf("edge-logs-%d-%03d.log.zst", m.config.Clock.Now().Unix(), sequence))
	if err := writeLogBundle(path, m.config.Clock.Now().UTC().Format("2006-01-02T15:04:05Z"), current); err != nil {
		current.Code = ipc.CodeCommandFailed
		current.Message = "could not capture logs"
		current.Error = err.Error()
		return current, nil
	}
	current.Message = path
	return current, nil
}

func (m *MonitorService) handleSetLogLevel(ctx context.Context, raw []byte) (any, error) {
	if failure, failed := m.takeFailure(ipc.ActionSetLogLevel); failed {
		return failure, nil
	}
	var request ipc.LogLevelRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	level, err := loglevel.Parse(request.Level)
	if err != nil {
		return nil, &service.ServiceError{Code: ipc.CodeUnknownError, Message: "invalid log level", AdditionalInfo: err.Error()}
	}
	m.mu.Lock()
	m.logLevel = level
	current := m.currentLocked("")
	m.mu.Unlock()
	return current, nil
}

func writeLogBundle(path, timestamp string, status ipc.MonitorStatus) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating log bundle: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := fmt.Fprintf(encoder, "%s monitor: data service status %s (release stream %s)\n",
		timestamp, status.Status, status.ReleaseStream); err != nil {
		encoder.Close()
		return fmt.Errorf("writing log bundle: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finishing log bundle: %w", err)
	}
	return file.Close()
}

func (m *MonitorService) stoppedTransition(current ipc.MonitorStatus) {
	m.logger.Info("data service stopped")
	m.pushStatus(current)
	if m.config.OnStop != nil {
		m.config.OnStop()
	}
}

func (m *MonitorService) takeFailure(action string) (ipc.MonitorStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	failure, ok := m.failures[action]
	if !ok {
		return ipc.MonitorStatus{}, false
	}
	delete(m.failures, action)
	failure.Status = m.status
	failure.ReleaseStream = m.config.ReleaseStream
	return failure, true
}

func (m *MonitorService) currentLocked(message string) ipc.MonitorStatus {
	return ipc.MonitorStatus{
		Code:          ipc.CodeSuccess,
		Message:       message,
		Status:        m.status,
		ReleaseStream: m.config.ReleaseStream,
	}
}

func (m *MonitorService) pushStatus(status ipc.MonitorStatus) {
	m.broadcast.push(ipc.Frame{Type: ipc.FrameServiceStatus, Monitor: &status})
}

// FailNext makes the next request for action answer with a non-zero
// code instead of acting.
func (m *MonitorService) FailNext(action string, code int, message, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[action] = ipc.MonitorStatus{Code: code, Message: message, Error: detail}
}

// SetStuck keeps the data service in StopPending until it is force
// terminated or started.
func (m *MonitorService) SetStuck(stuck bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stuck = stuck
}

// SetStatus sets the reported status verbatim and pushes it.
func (m *MonitorService) SetStatus(status string) {
	m.mu.Lock()
	m.status = status
	current := m.currentLocked("")
	m.mu.Unlock()
	m.pushStatus(current)
}

// Upgrade pushes the planned-upgrade signal.
func (m *MonitorService) Upgrade() {
	m.mu.Lock()
	current := m.currentLocked("upgrading")
	m.mu.Unlock()
	m.pushStatus(current)
}

// Shutdown pushes a shutdown frame and ends every subscribe stream.
func (m *MonitorService) Shutdown() {
	m.broadcast.push(ipc.Frame{Type: ipc.FrameShutdown})
	m.broadcast.disconnectAll()
}

// Status returns the status string currently reported.
func (m *MonitorService) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StatusQueries counts status requests served.
func (m *MonitorService) StatusQueries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusQueries
}

// LogLevel reports the last level set.
func (m *MonitorService) LogLevel() loglevel.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logLevel
}

// Subscribers returns the number of connected subscribe streams.
func (m *MonitorService) Subscribers() int { return m.broadcast.count() }
