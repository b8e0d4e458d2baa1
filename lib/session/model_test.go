// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestModel() *Model {
	return New(clock.Fake(testEpoch), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func added(fingerprint, name string, active bool) event.IdentityEvent {
	return event.IdentityEvent{
		Action:      event.Added,
		Fingerprint: fingerprint,
		Identity:    ipc.Identity{Fingerprint: fingerprint, Name: name, Active: active},
	}
}

func removed(fingerprint string) event.IdentityEvent {
	return event.IdentityEvent{Action: event.Removed, Fingerprint: fingerprint}
}

func serviceEvent(action event.Action, fingerprint, name string) event.ServiceEvent {
	return event.ServiceEvent{Action: action, Fingerprint: fingerprint, Service: ipc.Service{Name: name}}
}

func statusEvent(version int, identities ...ipc.Identity) event.TunnelStatusEvent {
	return event.TunnelStatusEvent{
		APIVersion: version,
		Status:     ipc.TunnelStatus{Active: true, Identities: identities},
	}
}

func TestAddedNewIdentityRefreshes(t *testing.T) {
	model := newTestModel()
	if change := model.ApplyIdentity(added("F1", "laptop", false)); change != Refreshed {
		t.Errorf("change = %v, want refreshed", change)
	}
	if model.Len() != 1 {
		t.Errorf("Len = %d, want 1", model.Len())
	}
}

func TestDuplicateAddedMergesInPlace(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", false))
	model.ApplyService(serviceEvent(event.Added, "F1", "ssh"))

	model.mu.Lock()
	original := model.identities[0]
	model.mu.Unlock()

	update := added("F1", "work laptop", true)
	update.Identity.ControllerURL = "https://ctrl.example"
	if change := model.ApplyIdentity(update); change != Updated {
		t.Errorf("change = %v, want updated", change)
	}

	model.mu.Lock()
	current := model.identities[0]
	model.mu.Unlock()
	if current != original {
		t.Error("merge replaced the identity object")
	}
	if current.Name != "work laptop" || current.ControllerURL != "https://ctrl.example" || !current.Enabled {
		t.Errorf("merged identity = %+v", current)
	}
	if len(current.Services) != 1 {
		t.Errorf("merge dropped services: %d", len(current.Services))
	}
}

func TestRemoveUnknownIsNoOp(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", false))
	if change := model.ApplyIdentity(removed("F2")); change != Unchanged {
		t.Errorf("change = %v, want unchanged", change)
	}
	if model.Len() != 1 {
		t.Errorf("Len = %d, want 1", model.Len())
	}
}

// For random interleavings of added and removed, the model holds
// exactly the fingerprints whose last event was an add, once each.
func TestIdentitySequencesConverge(t *testing.T) {
	random := rand.New(rand.NewPCG(1, 2))
	fingerprints := []string{"F1", "F2", "F3", "F4"}

	for trial := range 200 {
		model := newTestModel()
		want := map[string]bool{}
		for range 30 {
			fingerprint := fingerprints[random.IntN(len(fingerprints))]
			if random.IntN(3) > 0 {
				model.ApplyIdentity(added(fingerprint, "n", random.IntN(2) == 0))
				want[fingerprint] = true
			} else {
				model.ApplyIdentity(removed(fingerprint))
				delete(want, fingerprint)
			}
		}

		got := model.Fingerprints()
		seen := map[string]bool{}
		for _, fingerprint := range got {
			if seen[fingerprint] {
				t.Fatalf("trial %d: duplicate fingerprint %s in %v", trial, fingerprint, got)
			}
			seen[fingerprint] = true
			if !want[fingerprint] {
				t.Fatalf("trial %d: unexpected fingerprint %s", trial, fingerprint)
			}
		}
		if len(got) != len(want) {
			t.Fatalf("trial %d: got %v, want %v", trial, got, want)
		}
	}
}

func TestServiceForUnknownIdentityDropped(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", false))
	before := model.Snapshot()

	for _, action := range []event.Action{event.Added, event.Removed} {
		if change := model.ApplyService(serviceEvent(action, "ghost", "ssh")); change != Unchanged {
			t.Errorf("%v for unknown identity: change = %v", action, change)
		}
	}

	after := model.Snapshot()
	if len(after) != len(before) || len(after[0].Services) != 0 {
		t.Errorf("model changed: %+v", after)
	}
}

func TestDuplicateServiceDropped(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", false))

	if change := model.ApplyService(serviceEvent(event.Added, "F1", "ssh")); change != Updated {
		t.Errorf("first add: change = %v", change)
	}
	if change := model.ApplyService(serviceEvent(event.Added, "F1", "ssh")); change != Unchanged {
		t.Errorf("duplicate add: change = %v", change)
	}

	identity, _ := model.Identity("F1")
	if len(identity.Services) != 1 {
		t.Errorf("services = %d, want 1", len(identity.Services))
	}
}

func TestServiceRemovalIsCaseSensitive(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", false))
	model.ApplyService(serviceEvent(event.Added, "F1", "ssh"))
	model.ApplyService(serviceEvent(event.Added, "F1", "SSH"))

	model.ApplyService(serviceEvent(event.Removed, "F1", "ssh"))

	identity, _ := model.Identity("F1")
	if len(identity.Services) != 1 || identity.Services[0].Name != "SSH" {
		t.Errorf("services after removal = %+v", identity.Services)
	}
}

func TestStatusVersionMismatchLeavesModel(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", true))

	change, err := model.ApplyStatus(statusEvent(event.ExpectedAPIVersion+1, ipc.Identity{Fingerprint: "F9", Name: "other"}))
	if !errors.Is(err, event.ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
	if change != Unchanged {
		t.Errorf("change = %v", change)
	}
	if got := model.Fingerprints(); len(got) != 1 || got[0] != "F1" {
		t.Errorf("fingerprints = %v, want [F1]", got)
	}
	if model.Loaded() {
		t.Error("Loaded() = true after rejected snapshot")
	}
}

func TestStatusReplacesIdentitySet(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", true))
	model.ApplyService(serviceEvent(event.Added, "F1", "ssh"))

	snapshot := statusEvent(event.ExpectedAPIVersion,
		ipc.Identity{Fingerprint: "F2", Name: "phone", Services: []ipc.Service{{Name: "web"}, {Name: "web"}}},
		ipc.Identity{Fingerprint: "F3", Name: "desk"},
		ipc.Identity{Fingerprint: "F2", Name: "phone renamed", Active: true},
	)
	snapshot.Status.Duration = (90 * time.Minute).Milliseconds()
	snapshot.Status.LogLevel = "debug"
	snapshot.Status.IPInfo = &ipc.IPInfo{IP: "100.64.0.1", MTU: 4000, DNS: "100.64.0.2"}

	change, err := model.ApplyStatus(snapshot)
	if err != nil || change != Refreshed {
		t.Fatalf("ApplyStatus = %v, %v", change, err)
	}

	got := model.Fingerprints()
	if fmt.Sprint(got) != "[F2 F3]" {
		t.Fatalf("fingerprints = %v, want [F2 F3]", got)
	}
	phone, _ := model.Identity("F2")
	if phone.Name != "phone renamed" || !phone.Enabled || len(phone.Services) != 1 {
		t.Errorf("F2 = %+v", phone)
	}

	tunnel := model.Tunnel()
	if !tunnel.Active || tunnel.IP != "100.64.0.1" || tunnel.MTU != 4000 || tunnel.LogLevel != loglevel.Debug {
		t.Errorf("tunnel = %+v", tunnel)
	}
	if want := testEpoch.Add(-90 * time.Minute); !tunnel.ConnectedSince.Equal(want) {
		t.Errorf("ConnectedSince = %v, want %v", tunnel.ConnectedSince, want)
	}
	if elapsed := tunnel.Elapsed(testEpoch.Add(5 * time.Second)); elapsed != "01:30:05" {
		t.Errorf("Elapsed = %q", elapsed)
	}
}

func TestTunnelElapsed(t *testing.T) {
	tests := []struct {
		name  string
		since time.Time
		want  string
	}{
		{"not connected", time.Time{}, "00:00:00"},
		{"clock behind", testEpoch.Add(time.Second), "00:00:00"},
		{"seconds", testEpoch.Add(-59 * time.Second), "00:00:59"},
		{"mixed", testEpoch.Add(-(time.Hour + 2*time.Minute + 3*time.Second)), "01:02:03"},
		{"past a day", testEpoch.Add(-26 * time.Hour), "26:00:00"},
	}
	for _, test := range tests {
		if got := (Tunnel{ConnectedSince: test.since}).Elapsed(testEpoch); got != test.want {
			t.Errorf("%s: Elapsed = %q, want %q", test.name, got, test.want)
		}
	}
}

// A toggle whose identity was removed by a pushed event meanwhile is
// neither an error nor a resurrection.
func TestToggleAfterRemovalRace(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", false))
	model.ApplyIdentity(removed("F1"))

	if model.SetIdentityEnabled("F1", true) {
		t.Error("SetIdentityEnabled reported success for a removed identity")
	}
	if model.Len() != 0 {
		t.Errorf("Len = %d, want 0", model.Len())
	}
}

func TestTunnelActiveFollowsEnabledIdentities(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "a", false))
	model.ApplyIdentity(added("F2", "b", false))
	if model.TunnelActive() {
		t.Error("active with no enabled identity")
	}

	model.SetIdentityEnabled("F2", true)
	if !model.TunnelActive() {
		t.Error("inactive with an enabled identity")
	}
	if since := model.Tunnel().ConnectedSince; !since.Equal(testEpoch) {
		t.Errorf("ConnectedSince = %v, want %v", since, testEpoch)
	}

	model.SetAllEnabled(false)
	if model.TunnelActive() || model.Tunnel().Active {
		t.Error("active after disabling all")
	}
	if since := model.Tunnel().ConnectedSince; !since.IsZero() {
		t.Errorf("ConnectedSince = %v after disconnect", since)
	}
}

// The snapshot's own running flag can disagree with its identities.
// The connected-since time follows the identities, like Active does.
func TestStatusConnectedSinceFollowsIdentities(t *testing.T) {
	tests := []struct {
		name       string
		running    bool
		identities []ipc.Identity
		wantActive bool
		wantSince  time.Time
	}{
		{
			name:       "running with an enabled identity",
			running:    true,
			identities: []ipc.Identity{{Fingerprint: "F1", Active: true}},
			wantActive: true,
			wantSince:  testEpoch.Add(-time.Hour),
		},
		{
			name:       "stopped with an enabled identity",
			identities: []ipc.Identity{{Fingerprint: "F1", Active: true}},
			wantActive: true,
			wantSince:  testEpoch,
		},
		{
			name:       "running with every identity disabled",
			running:    true,
			identities: []ipc.Identity{{Fingerprint: "F1"}},
		},
		{
			name:    "running with no identities",
			running: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			model := newTestModel()
			snapshot := statusEvent(event.ExpectedAPIVersion, test.identities...)
			snapshot.Status.Active = test.running
			snapshot.Status.Duration = time.Hour.Milliseconds()

			if _, err := model.ApplyStatus(snapshot); err != nil {
				t.Fatalf("ApplyStatus: %v", err)
			}
			tunnel := model.Tunnel()
			if tunnel.Active != test.wantActive {
				t.Errorf("Active = %v, want %v", tunnel.Active, test.wantActive)
			}
			if !tunnel.ConnectedSince.Equal(test.wantSince) {
				t.Errorf("ConnectedSince = %v, want %v", tunnel.ConnectedSince, test.wantSince)
			}
		})
	}
}

func TestSnapshotSortedAndDetached(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "zulu", false))
	model.ApplyIdentity(added("F2", "Alpha", false))
	model.ApplyIdentity(added("F3", "bravo", false))
	model.ApplyService(serviceEvent(event.Added, "F1", "ssh"))

	snapshot := model.Snapshot()
	var names []string
	for _, identity := range snapshot {
		names = append(names, identity.Name)
	}
	if fmt.Sprint(names) != "[Alpha bravo zulu]" {
		t.Errorf("names = %v", names)
	}

	snapshot[2].Services[0].Name = "mutated"
	snapshot[2].Name = "mutated"
	identity, _ := model.Identity("F1")
	if identity.Name != "zulu" || identity.Services[0].Name != "ssh" {
		t.Error("snapshot shares state with the model")
	}
	if fmt.Sprint(model.Fingerprints()) != "[F1 F2 F3]" {
		t.Errorf("model order changed: %v", model.Fingerprints())
	}
}

func TestMFATransitions(t *testing.T) {
	model := newTestModel()
	model.ApplyIdentity(added("F1", "laptop", true))

	model.ApplyMFA(event.MFAEvent{Action: event.EnrollmentChallenge, Fingerprint: "F1", ProvisioningURL: "otpauth://x", RecoveryCodes: []string{"a"}})
	identity, _ := model.Identity("F1")
	if identity.MFA == nil || identity.MFA.Enrolled || identity.MFA.ProvisioningURL != "otpauth://x" {
		t.Fatalf("after challenge: %+v", identity.MFA)
	}

	if change := model.ApplyMFA(event.MFAEvent{Action: event.EnrollmentVerification, Fingerprint: "F1"}); change != Unchanged {
		t.Errorf("failed verification: change = %v", change)
	}

	model.ApplyMFA(event.MFAEvent{Action: event.EnrollmentVerification, Fingerprint: "F1", Successful: true})
	identity, _ = model.Identity("F1")
	if !identity.MFA.Enrolled || identity.MFA.ProvisioningURL != "" || len(identity.MFA.RecoveryCodes) != 1 {
		t.Fatalf("after verification: %+v", identity.MFA)
	}

	model.ApplyMFA(event.MFAEvent{Action: event.AuthChallenge, Fingerprint: "F1"})
	identity, _ = model.Identity("F1")
	if !identity.MFA.Required {
		t.Error("auth challenge did not mark MFA required")
	}
	model.ApplyMFA(event.MFAEvent{Action: event.AuthStatus, Fingerprint: "F1", Successful: true})
	identity, _ = model.Identity("F1")
	if identity.MFA.Required {
		t.Error("successful auth left MFA required")
	}

	model.ApplyMFA(event.MFAEvent{Action: event.EnrollmentRemove, Fingerprint: "F1", Successful: true})
	identity, _ = model.Identity("F1")
	if identity.MFA != nil {
		t.Errorf("after removal: %+v", identity.MFA)
	}

	if change := model.ApplyMFA(event.MFAEvent{Action: event.AuthChallenge, Fingerprint: "ghost"}); change != Unchanged {
		t.Errorf("unknown identity: change = %v", change)
	}
}

func TestApplyDispatch(t *testing.T) {
	model := newTestModel()
	change, err := model.Apply(added("F1", "laptop", false))
	if err != nil || change != Refreshed {
		t.Errorf("Apply(identity) = %v, %v", change, err)
	}
	change, err = model.Apply(event.MetricsEvent{})
	if err != nil || change != Unchanged {
		t.Errorf("Apply(metrics) = %v, %v", change, err)
	}
}
