// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the
// edge-desktop binaries and release version comparison for the
// update check.
//
// # Build information
//
// [Version], [GitCommit] and [BuildTime] can be injected with
// -ldflags -X. Without injection the commit and time come from the
// VCS stamps in the binary's build info, and are "unknown" in test
// binaries. [UserAgent] is sent with the release check request.
//
// # Release comparison
//
// [Compare] orders dotted numeric release versions such as "2.5.2" or
// the four-part "2.5.2.1" form, with or without a leading "v".
// [Newer] is the question the update check asks.
package version
