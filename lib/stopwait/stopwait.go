// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stopwait supervises a data service stop: it polls the
// monitor until the service reports Stopped or a fixed budget runs
// out, and then offers a single force-terminate escalation.
//
// All waiting goes through an injected [clock.Clock], so tests drive
// the loop with a fake clock and a scripted status source.
package stopwait

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/event"
)

const (
	DefaultBudget  = 30 * time.Second
	DefaultQuantum = 2 * time.Second
)

// Outcome is how a wait ended.
type Outcome uint8

const (
	// Stopped: the service reported Stopped.
	Stopped Outcome = iota + 1
	// Stuck: the budget ran out first. Escalation is available.
	Stuck
	// Cancelled: the context ended the wait.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Stopped:
		return "stopped"
	case Stuck:
		return "stuck"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// StatusFunc queries the data service's controller state.
type StatusFunc func(ctx context.Context) (event.MonitorStatus, error)

// Result describes a finished wait or escalation.
type Result struct {
	Outcome Outcome

	// Status is the last status successfully queried. It is the text
	// shown with a stuck notice.
	Status event.MonitorStatus

	// Polls counts status queries made.
	Polls int

	// LastErr is the most recent query error, if any.
	LastErr error
}

// Config configures a Supervisor. Query is required.
type Config struct {
	Clock   clock.Clock
	Logger  *slog.Logger
	Budget  time.Duration
	Quantum time.Duration
	Query   StatusFunc
}

// Supervisor runs stop waits. It holds no state between calls.
type Supervisor struct {
	clock   clock.Clock
	logger  *slog.Logger
	budget  time.Duration
	quantum time.Duration
	query   StatusFunc
}

// New returns a Supervisor, filling zero fields with the defaults.
func New(config Config) *Supervisor {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Budget <= 0 {
		config.Budget = DefaultBudget
	}
	if config.Quantum <= 0 {
		config.Quantum = DefaultQuantum
	}
	return &Supervisor{
		clock:   config.Clock,
		logger:  config.Logger,
		budget:  config.Budget,
		quantum: config.Quantum,
		query:   config.Query,
	}
}

// Wait polls every quantum until the service is stopped or the
// budget is spent. The deadline is fixed when Wait starts; the
// outcome is Stuck only once a poll completes at or after it. Query
// errors do not end the wait. Cancelling ctx returns Cancelled with
// ctx's error.
func (s *Supervisor) Wait(ctx context.Context) (Result, error) {
	deadline := s.clock.Now().Add(s.budget)
	var result Result

	for {
		select {
		case <-s.clock.After(s.quantum):
		case <-ctx.Done():
			result.Outcome = Cancelled
			return result, ctx.Err()
		}

		status, err := s.query(ctx)
		result.Polls++
		if err != nil {
			if ctx.Err() != nil {
				result.Outcome = Cancelled
				return result, ctx.Err()
			}
			result.LastErr = err
			s.logger.Warn("stop-wait status query failed", "poll", result.Polls, "error", err)
		} else {
			result.Status = status
			if status.Stopped() {
				result.Outcome = Stopped
				s.logger.Info("data service stopped", "polls", result.Polls)
				return result, nil
			}
			s.logger.Debug("data service still stopping", "poll", result.Polls, "status", status.RawStatus)
		}

		if !s.clock.Now().Before(deadline) {
			result.Outcome = Stuck
			s.logger.Warn("data service did not stop in time",
				"budget", s.budget,
				"status", result.Status.RawStatus,
			)
			return result, nil
		}
	}
}

// Escalate force-terminates the service and checks once whether it
// stopped. A terminate failure is returned with a Stuck result; the
// user can escalate again.
func (s *Supervisor) Escalate(ctx context.Context, terminate StatusFunc) (Result, error) {
	result := Result{Outcome: Stuck}

	status, err := terminate(ctx)
	if err != nil {
		result.Status = status
		result.LastErr = err
		s.logger.Error("force terminate failed", "error", err)
		return result, err
	}
	result.Status = status

	status, err = s.query(ctx)
	result.Polls = 1
	if err != nil {
		result.LastErr = err
		s.logger.Warn("status after force terminate failed", "error", err)
		return result, nil
	}
	result.Status = status
	if status.Stopped() {
		result.Outcome = Stopped
		s.logger.Info("data service stopped after force terminate")
	}
	return result, nil
}
