// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR wire types exchanged with the data
// (tunnel) service and the monitor (lifecycle) service. The desktop
// clients and the in-memory services in lib/edgetest both import this
// package so every type is defined once.
//
// Two exchange shapes share these types:
//
//   - Request/response: one CBOR request map per connection carrying
//     an "action" key, answered by one response envelope (see
//     lib/service.Response).
//   - Event stream: after a "subscribe" request the service writes a
//     sequence of [Frame] values until the connection closes.
//
// Frame.Type and Frame.Action are plain strings on the wire. The
// closed enumerations that consumers switch on live in lib/event,
// which rejects values it does not know.
package ipc
