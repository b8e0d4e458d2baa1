// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trayui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/edge-desktop/lib/coordinator"
	"github.com/bureau-foundation/edge-desktop/lib/session"
)

const defaultWidth = 72

func (model Model) View() string {
	if model.quitting {
		if model.reason != "" {
			return model.reason + "\n"
		}
		return ""
	}

	width := model.width
	if width <= 0 {
		width = defaultWidth
	}

	var sections []string
	sections = append(sections, model.renderHeader())
	if !model.hasView {
		sections = append(sections, model.faint().Render("waiting for the data service"))
		return strings.Join(sections, "\n") + "\n"
	}

	if tunnel := model.renderTunnel(); tunnel != "" {
		sections = append(sections, tunnel)
	}
	if model.view.LatestVersion != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(model.theme.WarningText).
			Render("update available: "+model.view.LatestVersion))
	}
	sections = append(sections, "", model.renderIdentities(width))
	if services := model.renderServices(); services != "" {
		sections = append(sections, "", services)
	}
	if model.mode != modeNormal {
		sections = append(sections, "", model.input.View())
	}
	if model.alert != nil {
		sections = append(sections, "", model.renderAlert(width))
	}
	if status := model.renderStatus(); status != "" {
		sections = append(sections, "", status)
	}
	sections = append(sections, "", model.renderHelp())
	return strings.Join(sections, "\n") + "\n"
}

func (model Model) faint() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(model.theme.FaintText)
}

func (model Model) renderHeader() string {
	badge := lipgloss.NewStyle().
		Foreground(model.theme.BadgeColor(model.view)).
		Bold(true).
		Render("●")
	title := lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true).Render("edge-desktop")

	state := model.view.State.String()
	switch model.view.State {
	case coordinator.Stuck, coordinator.NotStarted, coordinator.Unavailable:
		if model.view.StatusText != "" {
			state += " (" + model.view.StatusText + ")"
		}
	}
	if model.view.Loading {
		state = model.spinner.View() + " " + state
	}

	header := badge + " " + title + "  " + model.faint().Render(state)
	if model.view.ReleaseStream != "" {
		header += model.faint().Render("  [" + model.view.ReleaseStream + "]")
	}
	return header
}

func (model Model) renderTunnel() string {
	tunnel := model.view.Tunnel
	if model.view.State != coordinator.Available {
		return ""
	}
	var lines []string
	if tunnel.Active {
		lines = append(lines, "connected "+tunnel.Elapsed(model.now))
	} else {
		lines = append(lines, "disconnected")
	}

	var details []string
	if tunnel.IP != "" {
		address := tunnel.IP
		if tunnel.Subnet != "" {
			address += "/" + tunnel.Subnet
		}
		details = append(details, "ip "+address)
	}
	if tunnel.MTU != 0 {
		details = append(details, fmt.Sprintf("mtu %d", tunnel.MTU))
	}
	if tunnel.DNS != "" {
		details = append(details, "dns "+tunnel.DNS)
	}
	details = append(details, "log "+tunnel.LogLevel.String())
	lines = append(lines, model.faint().Render(strings.Join(details, "  ")))

	if model.view.UpRate != "" || model.view.DownRate != "" {
		lines = append(lines, fmt.Sprintf("↑ %s  ↓ %s", model.view.UpRate, model.view.DownRate))
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderIdentities(width int) string {
	if len(model.view.Identities) == 0 {
		return model.faint().Render("no identities; press a to add one")
	}
	selectedStyle := lipgloss.NewStyle().
		Background(model.theme.SelectedBackground).
		Foreground(model.theme.SelectedForeground).
		Width(width)
	normalStyle := lipgloss.NewStyle().Foreground(model.theme.NormalText)

	lines := make([]string, len(model.view.Identities))
	for i, identity := range model.view.Identities {
		line := identityLine(identity)
		if i == model.cursor {
			lines[i] = selectedStyle.Render("> " + line)
		} else {
			lines[i] = normalStyle.Render("  " + line)
		}
	}
	return strings.Join(lines, "\n")
}

func identityLine(identity session.Identity) string {
	mark := "[ ]"
	if identity.Enabled {
		mark = "[x]"
	}
	name := identity.Name
	if name == "" {
		name = identity.Fingerprint
	}
	line := mark + " " + name
	if identity.ControllerURL != "" {
		line += "  " + identity.ControllerURL
	}
	if identity.MFA != nil {
		switch {
		case identity.MFA.Required && !identity.MFA.Enrolled:
			line += "  mfa required"
		case identity.MFA.Enrolled:
			line += "  mfa"
		}
	}
	return line
}

func (model Model) renderServices() string {
	identity, ok := model.selected()
	if !ok {
		return ""
	}
	if len(identity.Services) == 0 {
		return model.faint().Render("no services")
	}
	warning := lipgloss.NewStyle().Foreground(model.theme.WarningText)
	lines := make([]string, 0, len(identity.Services))
	for _, service := range identity.Services {
		line := "  " + service.Name + "  " + model.faint().Render(service.String())
		if text := service.Warning(); text != "" {
			line += "  " + warning.Render(text)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderAlert(width int) string {
	title := lipgloss.NewStyle().Foreground(model.theme.ErrorText).Bold(true).Render(model.alert.Title)
	body := []string{title, model.alert.Message}
	if model.alert.Detail != "" {
		body = append(body, model.faint().Render(model.alert.Detail))
	}
	body = append(body, model.faint().Render("enter to dismiss"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.ErrorText).
		Padding(0, 1).
		Width(max(width-2, 20)).
		Render(strings.Join(body, "\n"))
}

func (model Model) renderStatus() string {
	if model.logLine != "" {
		color := model.theme.FaintText
		switch {
		case model.logLevel >= slog.LevelError:
			color = model.theme.ErrorText
		case model.logLevel >= slog.LevelWarn:
			color = model.theme.WarningText
		}
		return lipgloss.NewStyle().Foreground(color).Render(model.logLine)
	}
	if model.view.Notice != "" {
		return model.view.Notice
	}
	return ""
}

func (model Model) renderHelp() string {
	keys := model.keys
	var bindings []key.Binding
	switch {
	case model.alert != nil:
		bindings = []key.Binding{keys.Submit}
	case model.mode != modeNormal:
		bindings = []key.Binding{keys.Submit, keys.Dismiss}
	default:
		bindings = []key.Binding{keys.Toggle, keys.Connect, keys.Disconnect, keys.Add, keys.Forget, keys.MFA}
		if model.view.State == coordinator.Stuck {
			bindings = append(bindings, keys.ForceTerminate)
		} else {
			bindings = append(bindings, keys.StartService, keys.StopService)
		}
		bindings = append(bindings, keys.CaptureLogs, keys.LogLevel, keys.Quit)
	}
	parts := make([]string, len(bindings))
	for i, binding := range bindings {
		help := binding.Help()
		parts[i] = help.Key + " " + help.Desc
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, " · "))
}
