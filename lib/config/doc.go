// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the desktop client's YAML configuration.
//
// Configuration comes from a single file named by the
// EDGE_DESKTOP_CONFIG environment variable (via [Load]) or a
// --config flag (via [LoadFile]). There is no search path. Values
// missing from the file keep the [Default] values.
//
// After loading, ${VAR} and ${VAR:-default} patterns are expanded in
// path fields (socket addresses and the state directory). No other
// environment variables override config values.
package config
