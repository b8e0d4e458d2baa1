// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trayui

import "github.com/charmbracelet/bubbles/key"

// KeyMap is the tray window's key bindings.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	Toggle     key.Binding // Enable or disable the selected identity.
	Connect    key.Binding // Enable every identity.
	Disconnect key.Binding // Disable every identity.
	Add        key.Binding // Enroll from a token file.
	Forget     key.Binding // Remove the selected identity.
	MFA        key.Binding // Start or verify MFA on the selected identity.

	StartService   key.Binding
	StopService    key.Binding
	ForceTerminate key.Binding // Offered when the service is stuck.
	CaptureLogs    key.Binding
	LogLevel       key.Binding // Cycle the log level.

	Submit  key.Binding // Confirm input or dismiss an alert.
	Dismiss key.Binding // Cancel input or dismiss an alert.

	Quit key.Binding
}

// DefaultKeyMap is the built-in binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "toggle"),
	),
	Connect: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "connect"),
	),
	Disconnect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect"),
	),
	Add: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "add identity"),
	),
	Forget: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "forget"),
	),
	MFA: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mfa"),
	),
	StartService: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start service"),
	),
	StopService: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "stop service"),
	),
	ForceTerminate: key.NewBinding(
		key.WithKeys("F"),
		key.WithHelp("F", "force stop"),
	),
	CaptureLogs: key.NewBinding(
		key.WithKeys("L"),
		key.WithHelp("L", "capture logs"),
	),
	LogLevel: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "log level"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "ok"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
