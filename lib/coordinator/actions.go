// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/monitorclient"
	"github.com/bureau-foundation/edge-desktop/lib/service"
	"github.com/bureau-foundation/edge-desktop/lib/stopwait"
)

// Call-site codes shown as "Code N" when a request fails in a way no
// other category covers.
const (
	codeAddIdentity = iota + 1
	codeToggle
	codeConnect
	codeDisconnect
	codeLogLevel
	codeEnableMFA
	codeVerifyMFA
	codeRemoveMFA
	codeStartService
	codeStopService
	codeForceTerminate
	codeCaptureLogs
	codeRemoveIdentity
	codeResync
)

var requestTitles = map[int]string{
	codeAddIdentity:    "Enrollment Failed",
	codeToggle:         "Could Not Change Identity",
	codeConnect:        "Could Not Connect",
	codeDisconnect:     "Could Not Disconnect",
	codeLogLevel:       "Could Not Set Log Level",
	codeEnableMFA:      "Could Not Enable MFA",
	codeVerifyMFA:      "MFA Verification Failed",
	codeRemoveMFA:      "Could Not Remove MFA",
	codeStartService:   "Could Not Start Service",
	codeStopService:    "Could Not Stop Service",
	codeForceTerminate: "Could Not Stop Service",
	codeCaptureLogs:    "Could Not Capture Logs",
	codeRemoveIdentity: "Could Not Forget Identity",
	codeResync:         "Could Not Load Status",
}

// requestFunc does the blocking part of a user action off the loop.
// The returned closure, if any, runs on the loop afterwards, before
// any error is reported.
type requestFunc func(ctx context.Context) (apply func(), err error)

// panicError carries a recovered panic through the error boundary.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// request runs work on its own goroutine. Must be called on the loop.
// Requests are not cancelled when Run stops: they may already have
// changed service state, so they finish or time out on their own.
func (c *Coordinator) request(code int, work requestFunc) {
	c.pending++
	c.repaint()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.runCtx), c.requestTimeout)
	c.requests.Add(1)
	go func() {
		defer c.requests.Done()
		defer cancel()
		apply, err := guard(ctx, work)
		c.post(func() {
			c.pending--
			if apply != nil {
				if applyErr := guardApply(apply); applyErr != nil && err == nil {
					err = applyErr
				}
			}
			if err != nil {
				c.fail(code, err)
			}
			c.repaint()
		})
	}()
}

func guard(ctx context.Context, work requestFunc) (apply func(), err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			apply = nil
			err = &panicError{value: recovered, stack: debug.Stack()}
		}
	}()
	return work(ctx)
}

func guardApply(apply func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &panicError{value: recovered, stack: debug.Stack()}
		}
	}()
	apply()
	return nil
}

// fail reports a request error to the user according to its kind.
func (c *Coordinator) fail(code int, err error) {
	var (
		serviceErr    *service.ServiceError
		failure       *monitorclient.CommandFailure
		connectionErr *service.ConnectionError
		panicErr      *panicError
	)
	title := requestTitles[code]

	switch {
	case errors.Is(err, event.ErrVersionMismatch):
		c.failIncompatible(err)

	case errors.As(err, &serviceErr):
		c.logger.Warn("request rejected", "code", code, "error", err)
		c.presenter.ShowError(Alert{Title: title, Message: serviceErr.Message, Detail: serviceErr.AdditionalInfo})

	case errors.As(err, &failure):
		c.logger.Warn("service command failed", "code", code, "error", err)
		c.presenter.ShowError(Alert{Title: title, Message: failure.Message, Detail: failure.Err})

	case errors.As(err, &connectionErr):
		// The state banner already says the service is not available.
		c.logger.Warn("request could not reach service", "code", code, "error", err)

	case errors.Is(err, context.Canceled):
		c.logger.Debug("request cancelled", "code", code)

	default:
		if errors.As(err, &panicErr) {
			c.logger.Error("request panicked", "code", code, "panic", panicErr.value, "stack", string(panicErr.stack))
		} else {
			c.logger.Error("request failed", "code", code, "error", err)
		}
		c.presenter.ShowError(Alert{
			Title:   "Unexpected Error",
			Message: fmt.Sprintf("Code %d: %v", code, err),
		})
	}
}

// enqueue starts a request from any goroutine.
func (c *Coordinator) enqueue(code int, work requestFunc) {
	c.post(func() { c.request(code, work) })
}

// AddIdentityFile enrolls the token stored at path. The identity is
// named after the file.
func (c *Coordinator) AddIdentityFile(path string) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	c.enqueue(codeAddIdentity, func(ctx context.Context) (func(), error) {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading enrollment token: %w", err)
		}
		return c.addIdentity(ctx, name, string(content))
	})
}

// AddIdentity enrolls a token given as text.
func (c *Coordinator) AddIdentity(name, token string) {
	c.enqueue(codeAddIdentity, func(ctx context.Context) (func(), error) {
		return c.addIdentity(ctx, name, token)
	})
}

// addIdentity passes the token through untouched; the data service
// validates it. The new identity reaches the model through its
// added event.
func (c *Coordinator) addIdentity(ctx context.Context, name, token string) (func(), error) {
	identity, err := c.data.AddIdentity(ctx, name, false, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	c.logger.Info("identity enrolled", "fingerprint", identity.Fingerprint, "name", identity.Name)
	return func() { c.notice = fmt.Sprintf("Enrolled %s", identity.Name) }, nil
}

// SetIdentityEnabled turns one identity on or off. If the identity
// is removed while the request is in flight, nothing is reported.
func (c *Coordinator) SetIdentityEnabled(fingerprint string, enabled bool) {
	c.enqueue(codeToggle, func(ctx context.Context) (func(), error) {
		err := c.data.IdentityOnOff(ctx, fingerprint, enabled)
		return func() {
			if err == nil {
				if !c.model.SetIdentityEnabled(fingerprint, enabled) {
					c.logger.Debug("toggled identity is gone", "fingerprint", fingerprint)
				}
				return
			}
			if _, present := c.model.Identity(fingerprint); !present && isIdentityNotFound(err) {
				c.logger.Debug("toggled identity is gone", "fingerprint", fingerprint, "error", err)
				return
			}
			c.fail(codeToggle, err)
		}, nil
	})
}

// Connect turns the tunnel on and enables every identity.
func (c *Coordinator) Connect() { c.setAll(codeConnect, true) }

// Disconnect turns the tunnel off and disables every identity.
func (c *Coordinator) Disconnect() { c.setAll(codeDisconnect, false) }

func (c *Coordinator) setAll(code int, enabled bool) {
	c.post(func() {
		fingerprints := c.model.Fingerprints()
		c.request(code, func(ctx context.Context) (func(), error) {
			if err := c.data.SetTunnelState(ctx, enabled); err != nil {
				return nil, err
			}
			var toggled []string
			var errs []error
			for _, fingerprint := range fingerprints {
				err := c.data.IdentityOnOff(ctx, fingerprint, enabled)
				if isIdentityNotFound(err) {
					continue
				}
				if err != nil {
					errs = append(errs, err)
					continue
				}
				toggled = append(toggled, fingerprint)
			}
			return func() {
				for _, fingerprint := range toggled {
					c.model.SetIdentityEnabled(fingerprint, enabled)
				}
			}, errors.Join(errs...)
		})
	})
}

func isIdentityNotFound(err error) bool {
	var serviceErr *service.ServiceError
	return errors.As(err, &serviceErr) && serviceErr.Code == ipc.CodeIdentityNotFound
}

// RemoveIdentity asks the data service to forget an identity. The
// model changes when the removed event arrives.
func (c *Coordinator) RemoveIdentity(fingerprint string) {
	c.enqueue(codeRemoveIdentity, func(ctx context.Context) (func(), error) {
		return nil, c.data.RemoveIdentity(ctx, fingerprint)
	})
}

// SetLogLevel sets the level on both services and on the client's
// own handler. The local handler always follows. The model follows
// the data service, so a monitor failure alone still leaves the
// tunnel showing the level the data service now runs at.
func (c *Coordinator) SetLogLevel(level loglevel.Level) {
	c.enqueue(codeLogLevel, func(ctx context.Context) (func(), error) {
		dataErr := c.data.SetLogLevel(ctx, level)
		_, monitorErr := c.monitor.SetLogLevel(ctx, level)
		return func() {
			if dataErr == nil {
				c.model.SetLogLevel(level)
			}
			if c.levelVar != nil {
				c.levelVar.Set(level.Slog())
			}
			c.logger.Info("log level changed", "level", level.String(),
				"data", dataErr == nil, "monitor", monitorErr == nil)
		}, errors.Join(dataErr, monitorErr)
	})
}

// CycleLogLevel moves to the next level after the current one.
func (c *Coordinator) CycleLogLevel() {
	c.SetLogLevel(c.model.Tunnel().LogLevel.Next())
}

// EnableMFA starts MFA enrollment for an identity.
func (c *Coordinator) EnableMFA(fingerprint string) {
	c.enqueue(codeEnableMFA, func(ctx context.Context) (func(), error) {
		return nil, c.data.EnableMFA(ctx, fingerprint)
	})
}

// VerifyMFA completes enrollment with a one-time code.
func (c *Coordinator) VerifyMFA(fingerprint, code string) {
	c.enqueue(codeVerifyMFA, func(ctx context.Context) (func(), error) {
		return nil, c.data.VerifyMFA(ctx, fingerprint, code)
	})
}

// RemoveMFA removes MFA from an identity.
func (c *Coordinator) RemoveMFA(fingerprint, code string) {
	c.enqueue(codeRemoveMFA, func(ctx context.Context) (func(), error) {
		return nil, c.data.RemoveMFA(ctx, fingerprint, code)
	})
}

// StartService asks the monitor to start the data service.
func (c *Coordinator) StartService() {
	c.enqueue(codeStartService, c.monitorCommand(c.monitor.StartService))
}

// StopService asks the monitor to stop the data service. A
// StopPending answer starts Stop-Wait.
func (c *Coordinator) StopService() {
	c.enqueue(codeStopService, c.monitorCommand(c.monitor.StopService))
}

func (c *Coordinator) monitorCommand(command func(context.Context) (event.MonitorStatus, error)) requestFunc {
	return func(ctx context.Context) (func(), error) {
		status, err := command(ctx)
		if err != nil {
			return nil, err
		}
		return func() { c.applyMonitorStatus(status) }, nil
	}
}

// ForceTerminate abandons any running Stop-Wait, terminates the data
// service and checks once that it stopped.
func (c *Coordinator) ForceTerminate() {
	c.post(func() {
		c.cancelStopWait()
		c.request(codeForceTerminate, func(ctx context.Context) (func(), error) {
			result, err := c.stopWait.Escalate(ctx, c.monitor.ForceTerminate)
			return func() {
				if result.Status.RawStatus != "" {
					c.monitorStatus = result.Status
				}
				c.stuck = result.Outcome != stopwait.Stopped
			}, err
		})
	})
}

// CaptureLogs asks the monitor for a log bundle and shows its path.
func (c *Coordinator) CaptureLogs() {
	c.enqueue(codeCaptureLogs, func(ctx context.Context) (func(), error) {
		status, err := c.monitor.CaptureLogs(ctx)
		if err != nil {
			return nil, err
		}
		return func() { c.notice = "Logs captured to " + status.Message }, nil
	})
}
