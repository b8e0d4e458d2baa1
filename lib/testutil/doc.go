// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by edge-desktop tests.
//
// [SocketDir] returns a short directory under the system temp root for
// Unix sockets, whose paths are limited to 108 bytes. [RequireReceive]
// and [RequireClosed] wrap the select-with-timeout pattern so tests
// never hang on a channel that is never written.
//
// Helpers fail the test with t.Fatalf rather than returning errors.
package testutil
