// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trayui is the terminal front end of the desktop client. It
// plays the part of the tray window: a bubbletea program that draws
// the coordinator's views and turns key presses into coordinator
// actions.
//
// [Presenter] implements coordinator.Presenter by forwarding views
// and alerts into the running program. [TUILogHandler] routes warning
// and error log records into the status line. No session state lives
// here; every view is a snapshot handed over by the coordinator.
package trayui
