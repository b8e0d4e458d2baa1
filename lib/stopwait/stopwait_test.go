// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stopwait

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/testutil"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// scriptedStatus answers StopPending until stopAfter polls have been
// made, then Stopped. A negative stopAfter never stops. Each answer
// records the fake time it was asked at.
type scriptedStatus struct {
	clock     *clock.FakeClock
	stopAfter int

	mu      sync.Mutex
	askedAt []time.Time
}

func (s *scriptedStatus) query(ctx context.Context) (event.MonitorStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.askedAt = append(s.askedAt, s.clock.Now())
	if s.stopAfter >= 0 && len(s.askedAt) >= s.stopAfter {
		return event.MonitorStatus{Status: event.StatusStopped, RawStatus: "Stopped"}, nil
	}
	return event.MonitorStatus{Status: event.StatusStopPending, RawStatus: "StopPending"}, nil
}

func newSupervisor(fake *clock.FakeClock, query StatusFunc) *Supervisor {
	return New(Config{
		Clock:  fake,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Query:  query,
	})
}

type waitResult struct {
	result Result
	err    error
}

func startWait(ctx context.Context, supervisor *Supervisor) <-chan waitResult {
	done := make(chan waitResult, 1)
	go func() {
		result, err := supervisor.Wait(ctx)
		done <- waitResult{result, err}
	}()
	return done
}

// advanceUntilDone steps the fake clock one quantum each time the
// wait loop parks on a timer, until the wait returns.
func advanceUntilDone(t *testing.T, fake *clock.FakeClock, done <-chan waitResult) waitResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case outcome := <-done:
			return outcome
		default:
		}
		if fake.PendingCount() > 0 {
			fake.Advance(DefaultQuantum)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("wait never finished")
	return waitResult{}
}

func TestStuckAtDeadlineNeverEarlier(t *testing.T) {
	fake := clock.Fake(testEpoch)
	status := &scriptedStatus{clock: fake, stopAfter: -1}
	done := startWait(context.Background(), newSupervisor(fake, status.query))

	outcome := advanceUntilDone(t, fake, done)
	if outcome.err != nil || outcome.result.Outcome != Stuck {
		t.Fatalf("Wait = %+v, %v", outcome.result, outcome.err)
	}

	deadline := testEpoch.Add(DefaultBudget)
	last := status.askedAt[len(status.askedAt)-1]
	if last.Before(deadline) {
		t.Errorf("declared stuck at %v, before deadline %v", last, deadline)
	}
	if last.After(deadline.Add(DefaultQuantum)) {
		t.Errorf("declared stuck at %v, more than a quantum after deadline %v", last, deadline)
	}
	if outcome.result.Polls != int(DefaultBudget/DefaultQuantum) {
		t.Errorf("Polls = %d, want %d", outcome.result.Polls, DefaultBudget/DefaultQuantum)
	}
	if outcome.result.Status.Status != event.StatusStopPending {
		t.Errorf("last status = %v", outcome.result.Status.Status)
	}
}

func TestStoppedAfterNPolls(t *testing.T) {
	fake := clock.Fake(testEpoch)
	status := &scriptedStatus{clock: fake, stopAfter: 4}
	done := startWait(context.Background(), newSupervisor(fake, status.query))

	outcome := advanceUntilDone(t, fake, done)
	if outcome.err != nil || outcome.result.Outcome != Stopped {
		t.Fatalf("Wait = %+v, %v", outcome.result, outcome.err)
	}
	if outcome.result.Polls != 4 {
		t.Errorf("Polls = %d, want 4", outcome.result.Polls)
	}
	if elapsed := fake.Now().Sub(testEpoch); elapsed != 4*DefaultQuantum {
		t.Errorf("elapsed = %v, want %v", elapsed, 4*DefaultQuantum)
	}
}

func TestQueryErrorsKeepPolling(t *testing.T) {
	fake := clock.Fake(testEpoch)
	var calls int
	var mu sync.Mutex
	query := func(ctx context.Context) (event.MonitorStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return event.MonitorStatus{}, errors.New("monitor busy")
		}
		return event.MonitorStatus{Status: event.StatusStopped}, nil
	}
	done := startWait(context.Background(), newSupervisor(fake, query))

	outcome := advanceUntilDone(t, fake, done)
	if outcome.result.Outcome != Stopped || outcome.result.Polls != 3 {
		t.Errorf("result = %+v", outcome.result)
	}
	if outcome.result.LastErr == nil {
		t.Error("LastErr not recorded")
	}
}

func TestWaitCancelled(t *testing.T) {
	fake := clock.Fake(testEpoch)
	status := &scriptedStatus{clock: fake, stopAfter: -1}
	ctx, cancel := context.WithCancel(context.Background())
	done := startWait(ctx, newSupervisor(fake, status.query))

	fake.WaitForTimers(1)
	cancel()
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "cancelled wait")
	if outcome.result.Outcome != Cancelled || !errors.Is(outcome.err, context.Canceled) {
		t.Errorf("Wait = %+v, %v", outcome.result, outcome.err)
	}
}

func TestEscalateSuccess(t *testing.T) {
	fake := clock.Fake(testEpoch)
	status := &scriptedStatus{clock: fake, stopAfter: 1}
	supervisor := newSupervisor(fake, status.query)

	terminate := func(ctx context.Context) (event.MonitorStatus, error) {
		return event.MonitorStatus{Status: event.StatusStopPending}, nil
	}
	result, err := supervisor.Escalate(context.Background(), terminate)
	if err != nil || result.Outcome != Stopped {
		t.Errorf("Escalate = %+v, %v", result, err)
	}
	if len(status.askedAt) != 1 {
		t.Errorf("status asked %d times, want once", len(status.askedAt))
	}
}

func TestEscalateStillStuck(t *testing.T) {
	fake := clock.Fake(testEpoch)
	status := &scriptedStatus{clock: fake, stopAfter: -1}
	supervisor := newSupervisor(fake, status.query)

	result, err := supervisor.Escalate(context.Background(), func(ctx context.Context) (event.MonitorStatus, error) {
		return event.MonitorStatus{}, nil
	})
	if err != nil || result.Outcome != Stuck || result.Status.RawStatus != "StopPending" {
		t.Errorf("Escalate = %+v, %v", result, err)
	}
}

func TestEscalateTerminateFails(t *testing.T) {
	fake := clock.Fake(testEpoch)
	status := &scriptedStatus{clock: fake, stopAfter: 1}
	supervisor := newSupervisor(fake, status.query)
	failure := errors.New("access denied")

	result, err := supervisor.Escalate(context.Background(), func(ctx context.Context) (event.MonitorStatus, error) {
		return event.MonitorStatus{}, failure
	})
	if !errors.Is(err, failure) || result.Outcome != Stuck {
		t.Errorf("Escalate = %+v, %v", result, err)
	}
	if len(status.askedAt) != 0 {
		t.Error("status queried after failed terminate")
	}
}
