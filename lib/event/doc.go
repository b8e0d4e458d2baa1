// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event is the closed set of things the data and monitor
// services can tell the desktop client, plus the decoder that turns
// stream frames into them and the [Hub] that fans them out.
//
// Every event is one of the concrete types in this package; consumers
// match with a type switch. Frame-level string fields such as
// "added"/"removed" are parsed into enums during [Decode], so an
// unexpected value is a decode error rather than a silent no-op.
//
// Decode failures are terminal at the decoder: the stream reader logs
// and drops the frame and the session continues.
package event
