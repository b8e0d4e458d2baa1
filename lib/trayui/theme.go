// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trayui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/edge-desktop/lib/coordinator"
)

// Theme is the color palette. Colors are ANSI 256 codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Badge colors follow the tray icon: white when idle, green when
	// the tunnel is up, red when the service needs attention, amber
	// while it is changing state.
	BadgeIdle      lipgloss.Color
	BadgeConnected lipgloss.Color
	BadgeError     lipgloss.Color
	BadgeBusy      lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	WarningText lipgloss.Color
	ErrorText   lipgloss.Color
}

// DefaultTheme targets 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	BadgeIdle:      lipgloss.Color("255"),
	BadgeConnected: lipgloss.Color("114"),
	BadgeError:     lipgloss.Color("196"),
	BadgeBusy:      lipgloss.Color("220"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	WarningText: lipgloss.Color("220"),
	ErrorText:   lipgloss.Color("196"),
}

// BadgeColor picks the badge color for a view.
func (theme Theme) BadgeColor(view coordinator.View) lipgloss.Color {
	switch view.State {
	case coordinator.Available:
		if view.Tunnel.Active {
			return theme.BadgeConnected
		}
		return theme.BadgeIdle
	case coordinator.Connecting, coordinator.Starting, coordinator.Stopping, coordinator.Upgrading:
		return theme.BadgeBusy
	default:
		return theme.BadgeError
	}
}
