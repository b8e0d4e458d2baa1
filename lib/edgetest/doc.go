// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package edgetest provides in-memory data and monitor services that
// speak the real wire protocol over a [service.SocketServer]. Client
// tests run against them on temporary Unix sockets, and
// edge-mock-service serves them for manual work on the desktop
// client without a real tunnel installed.
//
// Both services keep all state in memory. Test-only methods (Push*,
// Set*, FailNext, Upgrade) inject the service-side events a real
// tunnel would produce on its own.
package edgetest
