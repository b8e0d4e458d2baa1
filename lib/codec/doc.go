// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration used on every
// edge-desktop socket: request envelopes, response envelopes, and the
// frames pushed on data and monitor event streams.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so the
// same logical value always produces the same bytes. Decoding ignores
// unknown fields, which lets a newer service add fields to a frame
// without breaking an older client.
//
// Consumers import this package rather than fxamacker/cbor directly.
package codec
