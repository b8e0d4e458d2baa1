// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trayui

import (
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/coordinator"
	"github.com/bureau-foundation/edge-desktop/lib/session"
)

// Actions are the user intents the window can raise. They return
// immediately; outcomes arrive as later views or alerts.
// *coordinator.Coordinator satisfies it.
type Actions interface {
	AddIdentityFile(path string)
	SetIdentityEnabled(fingerprint string, enabled bool)
	Connect()
	Disconnect()
	RemoveIdentity(fingerprint string)
	EnableMFA(fingerprint string)
	VerifyMFA(fingerprint, code string)
	StartService()
	StopService()
	ForceTerminate()
	CaptureLogs()
	CycleLogLevel()
}

type inputMode uint8

const (
	modeNormal inputMode = iota
	modeEnroll
	modeMFACode
)

// tickMsg advances the connected-time display.
type tickMsg time.Time

const tickInterval = time.Second

// Model is the bubbletea model for the tray window.
type Model struct {
	actions Actions
	keys    KeyMap
	theme   Theme
	clock   clock.Clock

	view    coordinator.View
	hasView bool
	now     time.Time

	cursor int

	alert *coordinator.Alert

	mode      inputMode
	input     textinput.Model
	mfaTarget string

	spinner  spinner.Model
	spinning bool

	logLine       string
	logLevel      slog.Level
	logGeneration int

	width    int
	quitting bool
	reason   string
}

// NewModel returns a model that sends user intents to actions.
func NewModel(actions Actions, clk clock.Clock) Model {
	if clk == nil {
		clk = clock.Real()
	}
	input := textinput.New()
	input.CharLimit = 4096

	return Model{
		actions: actions,
		keys:    DefaultKeyMap,
		theme:   DefaultTheme,
		clock:   clk,
		now:     clk.Now(),
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (model Model) Init() tea.Cmd {
	return model.tick()
}

func (model Model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(now time.Time) tea.Msg { return tickMsg(now) })
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		return model, nil

	case viewMsg:
		return model.applyView(message.view)

	case alertMsg:
		alert := message.alert
		model.alert = &alert
		return model, nil

	case tickMsg:
		model.now = model.clock.Now()
		return model, model.tick()

	case spinner.TickMsg:
		if !model.view.Loading {
			model.spinning = false
			return model, nil
		}
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command

	case logRecordMsg:
		model.logLine = message.Summary
		model.logLevel = message.Level
		model.logGeneration++
		generation := model.logGeneration
		return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{generation: generation}
		})

	case logRecordFadeMsg:
		if message.generation == model.logGeneration {
			model.logLine = ""
		}
		return model, nil

	case ShutdownMsg:
		model.quitting = true
		model.reason = message.Reason
		return model, tea.Quit

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model Model) applyView(view coordinator.View) (tea.Model, tea.Cmd) {
	model.view = view
	model.hasView = true
	model.now = model.clock.Now()
	if model.cursor >= len(view.Identities) {
		model.cursor = max(len(view.Identities)-1, 0)
	}
	if view.Loading && !model.spinning {
		model.spinning = true
		return model, model.spinner.Tick
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.alert != nil {
		if key.Matches(message, model.keys.Submit, model.keys.Dismiss) {
			model.alert = nil
		}
		return model, nil
	}
	if model.mode != modeNormal {
		return model.handleInputKeys(message)
	}

	selected, hasSelection := model.selected()

	switch {
	case key.Matches(message, model.keys.Quit):
		model.quitting = true
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.view.Identities)-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.Toggle):
		if hasSelection {
			model.actions.SetIdentityEnabled(selected.Fingerprint, !selected.Enabled)
		}

	case key.Matches(message, model.keys.Connect):
		model.actions.Connect()

	case key.Matches(message, model.keys.Disconnect):
		model.actions.Disconnect()

	case key.Matches(message, model.keys.Add):
		model.mode = modeEnroll
		model.input.Placeholder = "path to enrollment token (.jwt)"
		model.input.SetValue("")
		return model, model.input.Focus()

	case key.Matches(message, model.keys.Forget):
		if hasSelection {
			model.actions.RemoveIdentity(selected.Fingerprint)
		}

	case key.Matches(message, model.keys.MFA):
		if !hasSelection {
			break
		}
		if awaitingCode(selected) {
			model.mode = modeMFACode
			model.mfaTarget = selected.Fingerprint
			model.input.Placeholder = "one-time code"
			model.input.SetValue("")
			return model, model.input.Focus()
		}
		if selected.MFA == nil || !selected.MFA.Enrolled {
			model.actions.EnableMFA(selected.Fingerprint)
		}

	case key.Matches(message, model.keys.StartService):
		model.actions.StartService()

	case key.Matches(message, model.keys.StopService):
		model.actions.StopService()

	case key.Matches(message, model.keys.ForceTerminate):
		if model.view.State == coordinator.Stuck {
			model.actions.ForceTerminate()
		}

	case key.Matches(message, model.keys.CaptureLogs):
		model.actions.CaptureLogs()

	case key.Matches(message, model.keys.LogLevel):
		model.actions.CycleLogLevel()
	}
	return model, nil
}

func (model Model) handleInputKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Dismiss):
		model.mode = modeNormal
		model.input.Blur()
		return model, nil

	case key.Matches(message, model.keys.Submit):
		value := strings.TrimSpace(model.input.Value())
		if value != "" {
			switch model.mode {
			case modeEnroll:
				model.actions.AddIdentityFile(value)
			case modeMFACode:
				model.actions.VerifyMFA(model.mfaTarget, value)
			}
		}
		model.mode = modeNormal
		model.mfaTarget = ""
		model.input.Blur()
		return model, nil
	}

	var command tea.Cmd
	model.input, command = model.input.Update(message)
	return model, command
}

func (model Model) selected() (session.Identity, bool) {
	if model.cursor < 0 || model.cursor >= len(model.view.Identities) {
		return session.Identity{}, false
	}
	return model.view.Identities[model.cursor], true
}

// awaitingCode reports whether the identity has a pending enrollment
// challenge or needs a code before it will serve traffic.
func awaitingCode(identity session.Identity) bool {
	if identity.MFA == nil {
		return false
	}
	return identity.MFA.Required || (!identity.MFA.Enrolled && identity.MFA.ProvisioningURL != "")
}
