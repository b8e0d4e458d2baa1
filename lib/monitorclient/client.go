// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitorclient is the desktop client's connection to the
// service-lifecycle monitor: start, stop, force-terminate and status
// of the data service, log capture, and the monitor's pushed
// service-status events.
//
// The client reports controller states; it does not act on them. The
// one side effect it owns is the update check: the first failed
// reconnect in the life of the process asks a [VersionChecker] for
// the latest release and publishes [event.UpdateAvailable] when it is
// newer than the running build. Later failures do not ask again.
package monitorclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/service"
	"github.com/bureau-foundation/edge-desktop/lib/version"
)

const versionCheckTimeout = 30 * time.Second

// VersionChecker looks up the latest published release.
type VersionChecker interface {
	Latest(ctx context.Context) (string, error)
}

// CommandFailure is a lifecycle command the monitor answered with a
// non-zero code. The command can be retried.
type CommandFailure struct {
	Action  string
	Code    int
	Message string
	Err     string
}

func (f *CommandFailure) Error() string {
	if f.Err == "" {
		return fmt.Sprintf("monitor %s failed (code %d): %s", f.Action, f.Code, f.Message)
	}
	return fmt.Sprintf("monitor %s failed (code %d): %s: %s", f.Action, f.Code, f.Message, f.Err)
}

// Config configures a Client.
type Config struct {
	Endpoint       service.Endpoint
	Clock          clock.Clock
	Logger         *slog.Logger
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// VersionChecker is consulted once, on the first reconnect
	// failure. Nil disables the update check.
	VersionChecker VersionChecker

	// RunningVersion defaults to version.Short().
	RunningVersion string
}

// Client talks to the monitor service.
type Client struct {
	requests *service.ServiceClient
	stream   *service.EventStream
	hub      *event.Hub
	logger   *slog.Logger

	checker        VersionChecker
	runningVersion string

	lifetime context.Context
	cancel   context.CancelFunc
	checks   sync.WaitGroup

	mu                sync.Mutex
	hasCheckedVersion bool
}

// New returns an unconnected Client.
func New(config Config) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RunningVersion == "" {
		config.RunningVersion = version.Short()
	}
	logger := config.Logger.With("service", "monitor")
	lifetime, cancel := context.WithCancel(context.Background())

	client := &Client{
		requests:       service.NewServiceClient(config.Endpoint),
		hub:            event.NewHub(),
		logger:         logger,
		checker:        config.VersionChecker,
		runningVersion: config.RunningVersion,
		lifetime:       lifetime,
		cancel:         cancel,
	}
	client.stream = service.NewEventStream(service.StreamConfig{
		Endpoint:       config.Endpoint,
		Action:         ipc.ActionSubscribe,
		Clock:          config.Clock,
		Logger:         logger,
		InitialBackoff: config.InitialBackoff,
		MaxBackoff:     config.MaxBackoff,
		HandleFrame:    client.handleFrame,
		OnConnected: func() {
			client.hub.Publish(event.ClientConnected{Source: event.SourceMonitor})
		},
		OnDisconnected: func(err error) {
			client.hub.Publish(event.ClientDisconnected{Source: event.SourceMonitor, Err: err})
		},
		OnReconnectFailure: client.reconnectFailed,
	})
	return client
}

func (c *Client) handleFrame(frame codec.RawMessage) {
	decoded, err := event.Decode(event.SourceMonitor, frame)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "error", err, "frame", codec.Diagnostic(frame))
		return
	}
	if status, ok := decoded.(event.MonitorStatusEvent); ok && status.Status.Status == event.StatusUnknown {
		c.logger.Warn("unexpected service status", "status", status.Status.RawStatus)
	}
	c.hub.Publish(decoded)
}

func (c *Client) reconnectFailed(attempt int, err error) {
	c.hub.Publish(event.ReconnectFailure{Source: event.SourceMonitor, Attempt: attempt, Err: err})

	c.mu.Lock()
	if c.hasCheckedVersion || c.checker == nil {
		c.mu.Unlock()
		return
	}
	c.hasCheckedVersion = true
	c.mu.Unlock()

	c.checks.Add(1)
	go func() {
		defer c.checks.Done()
		c.checkVersion()
	}()
}

func (c *Client) checkVersion() {
	ctx, cancel := context.WithTimeout(c.lifetime, versionCheckTimeout)
	defer cancel()

	latest, err := c.checker.Latest(ctx)
	if err != nil {
		c.logger.Warn("release check failed", "error", err)
		return
	}
	newer, err := version.Newer(c.runningVersion, latest)
	if err != nil {
		c.logger.Warn("release check returned an unusable version", "latest", latest, "error", err)
		return
	}
	if !newer {
		c.logger.Info("running the latest release", "version", c.runningVersion)
		return
	}
	c.logger.Info("newer release available", "running", c.runningVersion, "latest", latest)
	c.hub.Publish(event.UpdateAvailable{Running: c.runningVersion, Latest: latest})
}

// HasCheckedVersion reports whether the one-shot update check has
// been started.
func (c *Client) HasCheckedVersion() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasCheckedVersion
}

// Subscribe returns a new event subscription.
func (c *Client) Subscribe() *event.Subscription { return c.hub.Subscribe() }

// Connect opens the event subscription.
func (c *Client) Connect(ctx context.Context) error { return c.stream.Connect(ctx) }

// WaitForConnection blocks until the subscription is open.
func (c *Client) WaitForConnection(ctx context.Context) error {
	return c.stream.WaitForConnection(ctx)
}

// Reconnect retries the subscription in the background. It does
// nothing while connected or already retrying.
func (c *Client) Reconnect(ctx context.Context) { c.stream.Reconnect(ctx) }

// Connected reports whether the subscription is open.
func (c *Client) Connected() bool { return c.stream.Connected() }

// Close drops the subscription, abandons a running update check, and
// closes every subscriber channel.
func (c *Client) Close() error {
	c.cancel()
	c.hub.Close()
	err := c.stream.Close()
	c.checks.Wait()
	return err
}

// StartService asks the monitor to start the data service.
func (c *Client) StartService(ctx context.Context) (event.MonitorStatus, error) {
	return c.command(ctx, ipc.ActionStart, nil)
}

// StopService asks the monitor to stop the data service. The answer
// is usually StopPending; completion is observed through Status.
func (c *Client) StopService(ctx context.Context) (event.MonitorStatus, error) {
	return c.command(ctx, ipc.ActionStop, nil)
}

// ForceTerminate kills a data service that will not stop.
func (c *Client) ForceTerminate(ctx context.Context) (event.MonitorStatus, error) {
	return c.command(ctx, ipc.ActionForceTerminate, nil)
}

// Status queries the data service's controller state.
func (c *Client) Status(ctx context.Context) (event.MonitorStatus, error) {
	return c.command(ctx, ipc.ActionStatus, nil)
}

// CaptureLogs asks the monitor to bundle the service logs. On success
// the returned Message is the bundle's path.
func (c *Client) CaptureLogs(ctx context.Context) (event.MonitorStatus, error) {
	return c.command(ctx, ipc.ActionCaptureLogs, nil)
}

// SetLogLevel changes the monitor's log level.
func (c *Client) SetLogLevel(ctx context.Context, level loglevel.Level) (event.MonitorStatus, error) {
	return c.command(ctx, ipc.ActionSetLogLevel, map[string]any{"level": level.String()})
}

// command issues a lifecycle request. A non-zero code comes back as
// both the status and a *CommandFailure.
func (c *Client) command(ctx context.Context, action string, fields map[string]any) (event.MonitorStatus, error) {
	var wire ipc.MonitorStatus
	if err := c.requests.Call(ctx, action, fields, &wire); err != nil {
		return event.MonitorStatus{}, err
	}
	status := event.NewMonitorStatus(wire)
	if status.Code != ipc.CodeSuccess {
		return status, &CommandFailure{
			Action:  action,
			Code:    status.Code,
			Message: status.Message,
			Err:     status.Error,
		}
	}
	return status, nil
}
