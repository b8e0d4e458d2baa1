// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the passage of time so that reconnect
// backoff and the stop-wait poll loop can be tested deterministically.
//
// Components take a Clock field. Production wiring passes Real();
// tests pass Fake() and move time forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go supervisor.Wait(ctx)
//	fake.WaitForTimers(1)        // the poll loop is now sleeping
//	fake.Advance(2 * time.Second) // wake it
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
