// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
)

func encodeFrame(t *testing.T, frame ipc.Frame) []byte {
	t.Helper()
	data, err := codec.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func TestDecodeIdentityAdded(t *testing.T) {
	raw := encodeFrame(t, ipc.Frame{
		Type:   ipc.FrameIdentity,
		Action: ipc.FrameActionAdded,
		Identity: &ipc.Identity{
			Name:        "laptop",
			Fingerprint: "F1",
			Active:      true,
		},
	})

	decoded, err := Decode(SourceData, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	identity, ok := decoded.(IdentityEvent)
	if !ok {
		t.Fatalf("Decode returned %T, want IdentityEvent", decoded)
	}
	if identity.Action != Added || identity.Fingerprint != "F1" || identity.Identity.Name != "laptop" {
		t.Errorf("IdentityEvent = %+v", identity)
	}
}

func TestDecodeIdentityRemovedByFingerprintOnly(t *testing.T) {
	raw := encodeFrame(t, ipc.Frame{Type: ipc.FrameIdentity, Action: ipc.FrameActionRemoved, Fingerprint: "F1"})

	decoded, err := Decode(SourceData, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if identity := decoded.(IdentityEvent); identity.Action != Removed || identity.Fingerprint != "F1" {
		t.Errorf("IdentityEvent = %+v", identity)
	}
}

func TestDecodeServiceStatus(t *testing.T) {
	raw := encodeFrame(t, ipc.Frame{
		Type:    ipc.FrameServiceStatus,
		Monitor: &ipc.MonitorStatus{Status: "StopPending", ReleaseStream: "beta"},
	})

	decoded, err := Decode(SourceMonitor, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	status := decoded.(MonitorStatusEvent).Status
	if status.Status != StatusStopPending || status.RawStatus != "StopPending" || status.ReleaseStream != "beta" {
		t.Errorf("MonitorStatus = %+v", status)
	}
}

func TestDecodeShutdownCarriesSource(t *testing.T) {
	decoded, err := Decode(SourceMonitor, encodeFrame(t, ipc.Frame{Type: ipc.FrameShutdown}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if shutdown := decoded.(ShutdownEvent); shutdown.Source != SourceMonitor {
		t.Errorf("Source = %v, want monitor", shutdown.Source)
	}
}

func TestDecodeMFA(t *testing.T) {
	raw := encodeFrame(t, ipc.Frame{
		Type:        ipc.FrameMFA,
		Action:      ipc.MFAEnrollmentChallenge,
		Fingerprint: "F1",
		MFA:         &ipc.MFAChallenge{ProvisioningURL: "otpauth://totp/edge", RecoveryCodes: []string{"a", "b"}},
	})

	decoded, err := Decode(SourceData, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	mfa := decoded.(MFAEvent)
	if mfa.Action != EnrollmentChallenge || mfa.ProvisioningURL != "otpauth://totp/edge" || len(mfa.RecoveryCodes) != 2 {
		t.Errorf("MFAEvent = %+v", mfa)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame ipc.Frame
	}{
		{"unknown type", ipc.Frame{Type: "bogus"}},
		{"identity typo action", ipc.Frame{Type: ipc.FrameIdentity, Action: "add", Fingerprint: "F1"}},
		{"identity added without payload", ipc.Frame{Type: ipc.FrameIdentity, Action: ipc.FrameActionAdded, Fingerprint: "F1"}},
		{"identity no fingerprint", ipc.Frame{Type: ipc.FrameIdentity, Action: ipc.FrameActionRemoved}},
		{"service no fingerprint", ipc.Frame{Type: ipc.FrameService, Action: ipc.FrameActionAdded, Service: &ipc.Service{Name: "ssh"}}},
		{"service no name", ipc.Frame{Type: ipc.FrameService, Action: ipc.FrameActionAdded, Fingerprint: "F1", Service: &ipc.Service{}}},
		{"status without payload", ipc.Frame{Type: ipc.FrameStatus}},
		{"mfa unknown action", ipc.Frame{Type: ipc.FrameMFA, Action: "enroll"}},
		{"service-status without payload", ipc.Frame{Type: ipc.FrameServiceStatus}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode(SourceData, encodeFrame(t, test.frame))
			var protocolErr *ProtocolError
			if !errors.As(err, &protocolErr) {
				t.Fatalf("err = %v, want *ProtocolError", err)
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode(SourceData, []byte{0x63, 'f'})
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
}

func TestCheckVersion(t *testing.T) {
	if err := (TunnelStatusEvent{APIVersion: ExpectedAPIVersion}).CheckVersion(); err != nil {
		t.Errorf("matching version: %v", err)
	}

	err := TunnelStatusEvent{APIVersion: ExpectedAPIVersion + 1}.CheckVersion()
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
	var mismatch *VersionMismatchError
	if !errors.As(err, &mismatch) || mismatch.Got != ExpectedAPIVersion+1 {
		t.Errorf("mismatch = %+v", mismatch)
	}
}
