// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/session"
	"github.com/bureau-foundation/edge-desktop/lib/stopwait"
)

// ErrUpgrading is returned by Run when the monitor announces an
// upgrade. It is a planned shutdown, not a failure.
var ErrUpgrading = errors.New("data service is upgrading")

// DataService is the part of *dataclient.Client the coordinator uses.
type DataService interface {
	Subscribe() *event.Subscription
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context)
	Status(ctx context.Context) (event.TunnelStatusEvent, error)
	AddIdentity(ctx context.Context, name string, isVerified bool, jwtContent string) (ipc.Identity, error)
	IdentityOnOff(ctx context.Context, fingerprint string, enabled bool) error
	RemoveIdentity(ctx context.Context, fingerprint string) error
	SetLogLevel(ctx context.Context, level loglevel.Level) error
	SetTunnelState(ctx context.Context, active bool) error
	EnableMFA(ctx context.Context, fingerprint string) error
	VerifyMFA(ctx context.Context, fingerprint, code string) error
	RemoveMFA(ctx context.Context, fingerprint, code string) error
}

// MonitorService is the part of *monitorclient.Client the
// coordinator uses.
type MonitorService interface {
	Subscribe() *event.Subscription
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context)
	StartService(ctx context.Context) (event.MonitorStatus, error)
	StopService(ctx context.Context) (event.MonitorStatus, error)
	ForceTerminate(ctx context.Context) (event.MonitorStatus, error)
	Status(ctx context.Context) (event.MonitorStatus, error)
	CaptureLogs(ctx context.Context) (event.MonitorStatus, error)
	SetLogLevel(ctx context.Context, level loglevel.Level) (event.MonitorStatus, error)
}

const (
	// DefaultRequestTimeout bounds each user-initiated request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultResyncDelay is how long after a data connection the
	// coordinator waits for a status frame before asking for one.
	DefaultResyncDelay = 5 * time.Second

	postBufferSize = 64
)

// Config configures a Coordinator. Data, Monitor and Presenter are
// required.
type Config struct {
	Data      DataService
	Monitor   MonitorService
	Presenter Presenter

	Clock  clock.Clock
	Logger *slog.Logger

	// LevelVar is the client's own handler level. SetLogLevel
	// updates it along with both services. Nil skips the local
	// update.
	LevelVar *slog.LevelVar

	StopBudget     time.Duration
	StopQuantum    time.Duration
	RequestTimeout time.Duration
	ResyncDelay    time.Duration
}

// Coordinator is the UI-affinity loop. Create with New, then call Run
// once.
type Coordinator struct {
	data      DataService
	monitor   MonitorService
	presenter Presenter
	clock     clock.Clock
	logger    *slog.Logger
	levelVar  *slog.LevelVar
	model     *session.Model
	stopWait  *stopwait.Supervisor

	requestTimeout time.Duration
	resyncDelay    time.Duration

	posts    chan func()
	done     chan struct{}
	doneOnce sync.Once
	requests sync.WaitGroup

	// runCtx is set by Run before any request can start.
	runCtx context.Context

	// Loop-owned state. Only touched from closures running on Run's
	// goroutine.
	dataConnected bool
	statusSeen    bool
	incompatible  bool
	upgrading     bool
	stuck         bool
	stopping      bool
	stopWaitGen   uint64
	stopCancel    context.CancelFunc
	monitorStatus event.MonitorStatus
	traffic       session.Totals
	latest        string
	notice        string
	pending       int
}

// New returns a Coordinator. It does not connect until Run.
func New(config Config) *Coordinator {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.ResyncDelay <= 0 {
		config.ResyncDelay = DefaultResyncDelay
	}

	c := &Coordinator{
		data:           config.Data,
		monitor:        config.Monitor,
		presenter:      config.Presenter,
		clock:          config.Clock,
		logger:         config.Logger,
		levelVar:       config.LevelVar,
		model:          session.New(config.Clock, config.Logger),
		requestTimeout: config.RequestTimeout,
		resyncDelay:    config.ResyncDelay,
		posts:          make(chan func(), postBufferSize),
		done:           make(chan struct{}),
		runCtx:         context.Background(),
	}
	c.stopWait = stopwait.New(stopwait.Config{
		Clock:   config.Clock,
		Logger:  config.Logger,
		Budget:  config.StopBudget,
		Quantum: config.StopQuantum,
		Query:   config.Monitor.Status,
	})
	return c
}

// Model returns the session model. Callers outside the loop may only
// read it.
func (c *Coordinator) Model() *session.Model { return c.model }

// Run connects both clients and processes events until ctx is
// cancelled or an upgrade is announced. It returns nil on
// cancellation and ErrUpgrading on upgrade. In-flight requests are
// allowed to finish before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.runCtx = ctx

	dataEvents := c.data.Subscribe()
	defer dataEvents.Close()
	monitorEvents := c.monitor.Subscribe()
	defer monitorEvents.Close()

	defer c.requests.Wait()
	defer c.doneOnce.Do(func() { close(c.done) })
	defer c.cancelStopWait()

	c.connect(ctx, "data", c.data.Connect, c.data.Reconnect)
	c.connect(ctx, "monitor", c.monitor.Connect, c.monitor.Reconnect)
	c.repaint()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-dataEvents.C:
			c.handleData(ctx, ev)
		case ev := <-monitorEvents.C:
			c.handleMonitor(ctx, ev)
		case fn := <-c.posts:
			fn()
		}
		if c.upgrading {
			c.logger.Info("monitor announced upgrade, shutting down")
			return ErrUpgrading
		}
	}
}

// connect makes the first connection attempt. Any failure hands off
// to the client's reconnect loop; an absent endpoint is the normal
// "service not running" case.
func (c *Coordinator) connect(ctx context.Context, name string, connect func(context.Context) error, reconnect func(context.Context)) {
	err := connect(ctx)
	if err == nil {
		return
	}
	c.logger.Info("service not reachable, will keep retrying", "service", name, "error", err)
	reconnect(ctx)
}

// post runs fn on the loop. It is dropped if the loop has exited.
func (c *Coordinator) post(fn func()) {
	select {
	case c.posts <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) handleData(ctx context.Context, ev event.Event) {
	switch typed := ev.(type) {
	case event.ClientConnected:
		c.dataConnected = true
		c.statusSeen = false
		c.scheduleResync()
		c.repaint()

	case event.ClientDisconnected:
		c.dataConnected = false
		c.traffic = session.Totals{}
		c.repaint()
		c.data.Reconnect(ctx)

	case event.ShutdownEvent:
		c.logger.Info("data service is shutting down")
		c.dataConnected = false
		c.repaint()

	case event.TunnelStatusEvent:
		c.statusSeen = true
		if c.incompatible {
			return
		}
		if _, err := c.model.ApplyStatus(typed); err != nil {
			c.failIncompatible(err)
			return
		}
		c.repaint()

	case event.MetricsEvent:
		c.traffic = session.AggregateMetrics(typed)
		c.repaint()

	case event.IdentityEvent, event.ServiceEvent, event.MFAEvent:
		if c.incompatible {
			return
		}
		change, err := c.model.Apply(ev)
		if err != nil {
			c.logger.Warn("event not applied", "error", err)
			return
		}
		if change != session.Unchanged {
			c.repaint()
		}

	default:
		c.logger.Debug("ignoring data event", "type", fmt.Sprintf("%T", ev))
	}
}

func (c *Coordinator) handleMonitor(ctx context.Context, ev event.Event) {
	switch typed := ev.(type) {
	case event.ClientConnected:
		c.logger.Info("monitor connected")

	case event.ClientDisconnected, event.ShutdownEvent:
		c.monitor.Reconnect(ctx)

	case event.MonitorStatusEvent:
		c.applyMonitorStatus(typed.Status)

	case event.ReconnectFailure:
		c.logger.Debug("monitor reconnect failed", "attempt", typed.Attempt, "error", typed.Err)

	case event.UpdateAvailable:
		c.latest = typed.Latest
		c.repaint()

	default:
		c.logger.Debug("ignoring monitor event", "type", fmt.Sprintf("%T", ev))
	}
}

// applyMonitorStatus folds a status from the monitor, whether pushed
// or returned by a command.
func (c *Coordinator) applyMonitorStatus(status event.MonitorStatus) {
	if status.Upgrading() {
		c.upgrading = true
		c.cancelStopWait()
		c.repaint()
		return
	}
	c.monitorStatus = status

	switch status.Status {
	case event.StatusStopped:
		c.cancelStopWait()
		c.stuck = false
	case event.StatusStopPending:
		if !c.stuck {
			c.startStopWait()
		}
	case event.StatusRunning, event.StatusStartPending:
		c.cancelStopWait()
		c.stuck = false
	case event.StatusPaused, event.StatusPausePending:
	default:
		c.logger.Warn("unexpected service status", "status", status.RawStatus)
	}
	c.repaint()
}

func (c *Coordinator) startStopWait() {
	if c.stopping {
		return
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	c.stopping = true
	c.stopCancel = cancel
	c.stopWaitGen++
	generation := c.stopWaitGen

	c.requests.Add(1)
	go func() {
		defer c.requests.Done()
		result, err := c.stopWait.Wait(ctx)
		c.post(func() { c.finishStopWait(generation, result, err) })
	}()
}

func (c *Coordinator) finishStopWait(generation uint64, result stopwait.Result, err error) {
	if generation != c.stopWaitGen || !c.stopping {
		return
	}
	c.stopping = false
	c.stopCancel()
	c.stopCancel = nil

	switch result.Outcome {
	case stopwait.Stopped:
		c.monitorStatus = result.Status
	case stopwait.Stuck:
		c.stuck = true
		if result.Status.RawStatus != "" {
			c.monitorStatus = result.Status
		}
	case stopwait.Cancelled:
		c.logger.Debug("stop-wait cancelled", "error", err)
	}
	c.repaint()
}

func (c *Coordinator) cancelStopWait() {
	if c.stopCancel != nil {
		c.stopCancel()
		c.stopCancel = nil
	}
	c.stopping = false
}

// scheduleResync asks for a full status if the data service has not
// sent one shortly after connecting.
func (c *Coordinator) scheduleResync() {
	c.requests.Add(1)
	go func() {
		defer c.requests.Done()
		select {
		case <-c.clock.After(c.resyncDelay):
		case <-c.done:
			return
		}
		c.post(func() {
			if c.statusSeen || !c.dataConnected || c.incompatible {
				return
			}
			c.logger.Info("no status after connect, requesting one")
			c.request(codeResync, func(ctx context.Context) (func(), error) {
				status, err := c.data.Status(ctx)
				if err != nil {
					return nil, err
				}
				return func() { c.handleData(c.runCtx, status) }, nil
			})
		})
	}()
}

func (c *Coordinator) failIncompatible(err error) {
	if c.incompatible {
		return
	}
	c.incompatible = true
	c.logger.Error("data service is incompatible", "error", err)
	c.repaint()
	c.presenter.ShowError(Alert{
		Title:   "Incompatible Service",
		Message: "The tunnel service is not compatible with this client. Update the client or the service.",
		Detail:  err.Error(),
	})
}

// state derives the displayed service state from the loop's flags,
// most severe first.
func (c *Coordinator) state() ServiceState {
	switch {
	case c.upgrading:
		return Upgrading
	case c.incompatible:
		return Incompatible
	case c.stuck:
		return Stuck
	case c.stopping:
		return Stopping
	case c.monitorStatus.Status == event.StatusStopped:
		return NotStarted
	case c.monitorStatus.Status == event.StatusStartPending:
		return Starting
	case c.dataConnected:
		return Available
	case c.monitorStatus.RawStatus != "":
		return Unavailable
	default:
		return Connecting
	}
}

func (c *Coordinator) view() View {
	up, upSuffix := session.FormatRate(c.traffic.Up)
	down, downSuffix := session.FormatRate(c.traffic.Down)
	return View{
		State:         c.state(),
		StatusText:    c.monitorStatus.RawStatus,
		ReleaseStream: c.monitorStatus.ReleaseStream,
		Identities:    c.model.Snapshot(),
		Tunnel:        c.model.Tunnel(),
		Traffic:       c.traffic,
		UpRate:        up + " " + upSuffix,
		DownRate:      down + " " + downSuffix,
		LatestVersion: c.latest,
		Loading:       c.pending > 0,
		Notice:        c.notice,
	}
}

func (c *Coordinator) repaint() {
	c.presenter.Repaint(c.view())
}
