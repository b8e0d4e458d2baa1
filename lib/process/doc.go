// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the edge-desktop
// binaries: reporting an error to stderr before or after the
// structured logger exists, and exiting with the status the rest of
// the desktop tooling expects.
package process
