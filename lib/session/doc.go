// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the desktop client's converged view of the
// data service: the ordered identity set with each identity's
// services and enabled flag, and the tunnel interface details.
//
// The [Model] changes only by folding events into it (ApplyIdentity,
// ApplyService, ApplyStatus, ApplyMFA) and by the owner recording the
// result of its own requests (SetIdentityEnabled, SetAllEnabled).
// Fingerprints are unique in the identity set and service names are
// unique within an identity at every point.
//
// A Model is safe for concurrent use, but it is meant to have one
// owner goroutine; the lock only serializes the owner against
// readers taking snapshots for display.
package session
