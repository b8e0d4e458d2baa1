// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trayui

import (
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/coordinator"
	"github.com/bureau-foundation/edge-desktop/lib/session"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingActions records each intent as a short string.
type recordingActions struct {
	calls []string
}

func (r *recordingActions) record(call string) { r.calls = append(r.calls, call) }

func (r *recordingActions) AddIdentityFile(path string) { r.record("add " + path) }
func (r *recordingActions) SetIdentityEnabled(fingerprint string, enabled bool) {
	if enabled {
		r.record("enable " + fingerprint)
	} else {
		r.record("disable " + fingerprint)
	}
}
func (r *recordingActions) Connect()                          { r.record("connect") }
func (r *recordingActions) Disconnect()                       { r.record("disconnect") }
func (r *recordingActions) RemoveIdentity(fingerprint string) { r.record("remove " + fingerprint) }
func (r *recordingActions) EnableMFA(fingerprint string)      { r.record("mfa " + fingerprint) }
func (r *recordingActions) VerifyMFA(fingerprint, code string) {
	r.record("verify " + fingerprint + " " + code)
}
func (r *recordingActions) StartService()   { r.record("start") }
func (r *recordingActions) StopService()    { r.record("stop") }
func (r *recordingActions) ForceTerminate() { r.record("terminate") }
func (r *recordingActions) CaptureLogs()    { r.record("logs") }
func (r *recordingActions) CycleLogLevel()  { r.record("level") }

var _ Actions = (*coordinator.Coordinator)(nil)

func testView() coordinator.View {
	return coordinator.View{
		State:         coordinator.Available,
		ReleaseStream: "stable",
		Identities: []session.Identity{
			{
				Fingerprint:   "fp-1",
				Name:          "work",
				ControllerURL: "https://ctrl.example:1280",
				Enabled:       true,
				Services: []*session.Service{{
					Name:      "wiki",
					Protocols: []string{"TCP"},
				}},
			},
			{
				Fingerprint: "fp-2",
				Name:        "lab",
				MFA:         &session.MFA{ProvisioningURL: "otpauth://totp/lab"},
			},
		},
		Tunnel: session.Tunnel{
			Active:         true,
			IP:             "100.64.0.1",
			MTU:            4000,
			DNS:            "100.64.0.2",
			ConnectedSince: testEpoch.Add(-90 * time.Minute),
		},
		UpRate:   "1.5 kBps",
		DownRate: "0.0 bps",
	}
}

func runes(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

func newTestModel(t *testing.T) (Model, *recordingActions) {
	t.Helper()
	actions := &recordingActions{}
	model := NewModel(actions, clock.Fake(testEpoch))
	updated, _ := model.Update(viewMsg{view: testView()})
	return updated.(Model), actions
}

func press(model Model, messages ...tea.Msg) Model {
	for _, message := range messages {
		updated, _ := model.Update(message)
		model = updated.(Model)
	}
	return model
}

func TestModelKeyDispatch(t *testing.T) {
	model, actions := newTestModel(t)

	model = press(model,
		tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}},
		runes("j"),
		tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}},
		runes("x"),
		runes("c"),
		runes("d"),
		runes("s"),
		runes("S"),
		runes("L"),
		runes("v"),
	)

	want := []string{
		"disable fp-1",
		"enable fp-2",
		"remove fp-2",
		"connect",
		"disconnect",
		"start",
		"stop",
		"logs",
		"level",
	}
	if !slices.Equal(actions.calls, want) {
		t.Errorf("calls = %q, want %q", actions.calls, want)
	}
	if model.cursor != 1 {
		t.Errorf("cursor = %d, want 1", model.cursor)
	}
}

func TestModelCursorStaysInRange(t *testing.T) {
	model, _ := newTestModel(t)

	model = press(model, runes("k"))
	if model.cursor != 0 {
		t.Errorf("cursor after k at top = %d, want 0", model.cursor)
	}
	model = press(model, runes("j"), runes("j"), runes("j"))
	if model.cursor != 1 {
		t.Errorf("cursor after j past end = %d, want 1", model.cursor)
	}

	// Removing the selected identity pulls the cursor back.
	view := testView()
	view.Identities = view.Identities[:1]
	model = press(model, viewMsg{view: view})
	if model.cursor != 0 {
		t.Errorf("cursor after removal = %d, want 0", model.cursor)
	}
}

func TestModelForceTerminateOnlyWhenStuck(t *testing.T) {
	model, actions := newTestModel(t)

	model = press(model, runes("F"))
	if len(actions.calls) != 0 {
		t.Fatalf("force terminate sent while available: %q", actions.calls)
	}

	view := testView()
	view.State = coordinator.Stuck
	view.StatusText = "StopPending"
	model = press(model, viewMsg{view: view}, runes("F"))
	if !slices.Equal(actions.calls, []string{"terminate"}) {
		t.Errorf("calls = %q, want [terminate]", actions.calls)
	}
	rendered := model.View()
	if !strings.Contains(rendered, "stuck (StopPending)") {
		t.Errorf("stuck header missing from view:\n%s", rendered)
	}
	if !strings.Contains(rendered, "force stop") {
		t.Errorf("force stop help missing from view:\n%s", rendered)
	}
}

func TestModelEnrollPrompt(t *testing.T) {
	model, actions := newTestModel(t)

	model = press(model, runes("a"))
	if model.mode != modeEnroll {
		t.Fatalf("mode = %d, want enroll", model.mode)
	}
	// Keys that are bindings in normal mode are typed into the prompt.
	model = press(model, runes("/tmp/q.jwt"), tea.KeyMsg{Type: tea.KeyEnter})

	if model.mode != modeNormal {
		t.Errorf("mode after submit = %d, want normal", model.mode)
	}
	if !slices.Equal(actions.calls, []string{"add /tmp/q.jwt"}) {
		t.Errorf("calls = %q, want [add /tmp/q.jwt]", actions.calls)
	}
}

func TestModelEnrollCancel(t *testing.T) {
	model, actions := newTestModel(t)

	model = press(model, runes("a"), runes("token"), tea.KeyMsg{Type: tea.KeyEsc})
	if model.mode != modeNormal {
		t.Errorf("mode after esc = %d, want normal", model.mode)
	}
	if len(actions.calls) != 0 {
		t.Errorf("calls after cancel = %q, want none", actions.calls)
	}
}

func TestModelMFA(t *testing.T) {
	model, actions := newTestModel(t)

	// fp-1 has no MFA state: m starts enrollment.
	model = press(model, runes("m"))
	// fp-2 has a pending challenge: m prompts for the code.
	model = press(model, runes("j"), runes("m"))
	if model.mode != modeMFACode {
		t.Fatalf("mode = %d, want mfa code", model.mode)
	}
	model = press(model, runes("123456"), tea.KeyMsg{Type: tea.KeyEnter})

	want := []string{"mfa fp-1", "verify fp-2 123456"}
	if !slices.Equal(actions.calls, want) {
		t.Errorf("calls = %q, want %q", actions.calls, want)
	}
}

func TestModelAlertBlocksKeys(t *testing.T) {
	model, actions := newTestModel(t)

	model = press(model, alertMsg{alert: coordinator.Alert{
		Title:   "Enrollment Failed",
		Message: "the token has expired",
	}})
	rendered := model.View()
	for _, want := range []string{"Enrollment Failed", "the token has expired"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("view missing %q:\n%s", want, rendered)
		}
	}

	model = press(model, runes("c"))
	if len(actions.calls) != 0 {
		t.Errorf("key reached actions behind an alert: %q", actions.calls)
	}

	model = press(model, tea.KeyMsg{Type: tea.KeyEnter}, runes("c"))
	if model.alert != nil {
		t.Error("alert still shown after enter")
	}
	if !slices.Equal(actions.calls, []string{"connect"}) {
		t.Errorf("calls = %q, want [connect]", actions.calls)
	}
}

func TestModelView(t *testing.T) {
	model, _ := newTestModel(t)
	model = press(model, tea.WindowSizeMsg{Width: 100, Height: 30})

	rendered := model.View()
	for _, want := range []string{
		"available",
		"[stable]",
		"connected 01:30:00",
		"ip 100.64.0.1",
		"mtu 4000",
		"dns 100.64.0.2",
		"1.5 kBps",
		"[x] work",
		"[ ] lab",
		"wiki",
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("view missing %q:\n%s", want, rendered)
		}
	}
}

func TestModelViewBeforeFirstRepaint(t *testing.T) {
	model := NewModel(&recordingActions{}, clock.Fake(testEpoch))
	if rendered := model.View(); !strings.Contains(rendered, "waiting for the data service") {
		t.Errorf("view before first repaint:\n%s", rendered)
	}
}

func TestModelUpdateAvailable(t *testing.T) {
	model, _ := newTestModel(t)
	view := testView()
	view.LatestVersion = "2.7.1"
	model = press(model, viewMsg{view: view})
	if rendered := model.View(); !strings.Contains(rendered, "update available: 2.7.1") {
		t.Errorf("update line missing:\n%s", rendered)
	}
}

func TestModelLogLineFades(t *testing.T) {
	model, _ := newTestModel(t)

	model = press(model, logRecordMsg{Summary: "first"})
	model = press(model, logRecordMsg{Summary: "second"})
	// The fade scheduled for the first record must not clear the second.
	model = press(model, logRecordFadeMsg{generation: 1})
	if model.logLine != "second" {
		t.Fatalf("log line after stale fade = %q, want second", model.logLine)
	}
	model = press(model, logRecordFadeMsg{generation: 2})
	if model.logLine != "" {
		t.Errorf("log line after fade = %q, want empty", model.logLine)
	}
}

func TestModelNoticeShown(t *testing.T) {
	model, _ := newTestModel(t)
	view := testView()
	view.Notice = "Logs captured to /tmp/bundle.zip"
	model = press(model, viewMsg{view: view})
	if rendered := model.View(); !strings.Contains(rendered, view.Notice) {
		t.Errorf("notice missing:\n%s", rendered)
	}
}

func TestModelShutdownQuits(t *testing.T) {
	model, _ := newTestModel(t)

	updated, command := model.Update(ShutdownMsg{Reason: "upgrading"})
	if command == nil {
		t.Fatal("shutdown should return a quit command")
	}
	if _, ok := command().(tea.QuitMsg); !ok {
		t.Error("shutdown command is not tea.Quit")
	}
	if rendered := updated.(Model).View(); rendered != "upgrading\n" {
		t.Errorf("view after shutdown = %q", rendered)
	}
}

func TestModelQuit(t *testing.T) {
	model, _ := newTestModel(t)
	_, command := model.Update(runes("q"))
	if command == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := command().(tea.QuitMsg); !ok {
		t.Error("q command is not tea.Quit")
	}
}

func TestBadgeColor(t *testing.T) {
	theme := DefaultTheme
	tests := []struct {
		name  string
		view  coordinator.View
		color string
	}{
		{"idle", coordinator.View{State: coordinator.Available}, string(theme.BadgeIdle)},
		{"connected", coordinator.View{State: coordinator.Available, Tunnel: session.Tunnel{Active: true}}, string(theme.BadgeConnected)},
		{"stopping", coordinator.View{State: coordinator.Stopping}, string(theme.BadgeBusy)},
		{"stuck", coordinator.View{State: coordinator.Stuck}, string(theme.BadgeError)},
		{"incompatible", coordinator.View{State: coordinator.Incompatible}, string(theme.BadgeError)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := string(theme.BadgeColor(test.view)); got != test.color {
				t.Errorf("BadgeColor = %s, want %s", got, test.color)
			}
		})
	}
}
