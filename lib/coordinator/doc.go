// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator runs the client's UI-affinity loop.
//
// A [Coordinator] owns the [session.Model] and is the only goroutine
// that mutates it. Events from the data and monitor clients, request
// completions, and Stop-Wait outcomes are all funneled onto the loop
// in [Coordinator.Run]; user actions may be called from any
// goroutine and post their results back. After every change the loop
// hands a fresh [View] to the [Presenter].
//
// Request failures are sorted at one boundary: service rejections and
// lifecycle command failures are shown verbatim, an absent service
// becomes the persistent "not available" state, a version mismatch
// becomes the blocking incompatible state, and anything else
// (including a panic in a request goroutine) is shown as
// "Unexpected Error" with a per-action code.
package coordinator
