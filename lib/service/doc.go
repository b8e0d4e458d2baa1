// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service is the transport channel between the desktop client
// and its two out-of-process services (the data/tunnel service and the
// monitor/lifecycle service).
//
// Three building blocks:
//
//   - [ServiceClient]: one CBOR request per connection. Call dials,
//     writes {action, ...fields}, reads one [Response], closes.
//   - [EventStream]: one long-lived "subscribe" connection delivering
//     pushed frames in order on a single goroutine, with idempotent
//     reconnect on an exponential backoff schedule.
//   - [SocketServer]: the serving side of both, used by the in-memory
//     services in lib/edgetest and the mock service binary.
//
// Failures are classified by type: [ConnectionError] when the endpoint
// cannot be reached, [ServiceError] when the service answered ok=false,
// and [ProtocolError] when bytes arrived that could not be understood.
package service
