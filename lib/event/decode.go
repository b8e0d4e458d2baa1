// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"

	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
)

// Decode turns one stream frame from source into an Event. All
// errors are *ProtocolError.
func Decode(source Source, raw []byte) (Event, error) {
	var frame ipc.Frame
	if err := codec.Unmarshal(raw, &frame); err != nil {
		return nil, &ProtocolError{Reason: "malformed frame", Err: err}
	}

	event, err := fromFrame(source, frame)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("%s frame from %s service", frame.Type, source), Err: err}
	}
	return event, nil
}

func fromFrame(source Source, frame ipc.Frame) (Event, error) {
	switch frame.Type {
	case ipc.FrameStatus:
		if frame.Status == nil {
			return nil, fmt.Errorf("missing status")
		}
		return TunnelStatusEvent{APIVersion: frame.APIVersion, Status: *frame.Status}, nil

	case ipc.FrameIdentity:
		action, err := ParseAction(frame.Action)
		if err != nil {
			return nil, err
		}
		decoded := IdentityEvent{Action: action, Fingerprint: frame.Fingerprint}
		if frame.Identity != nil {
			decoded.Identity = *frame.Identity
			if decoded.Fingerprint == "" {
				decoded.Fingerprint = frame.Identity.Fingerprint
			}
		}
		if decoded.Fingerprint == "" {
			return nil, fmt.Errorf("missing fingerprint")
		}
		if action == Added && frame.Identity == nil {
			return nil, fmt.Errorf("added without identity")
		}
		return decoded, nil

	case ipc.FrameService:
		action, err := ParseAction(frame.Action)
		if err != nil {
			return nil, err
		}
		if frame.Fingerprint == "" {
			return nil, fmt.Errorf("missing fingerprint")
		}
		if frame.Service == nil || frame.Service.Name == "" {
			return nil, fmt.Errorf("missing service name")
		}
		return ServiceEvent{Action: action, Fingerprint: frame.Fingerprint, Service: *frame.Service}, nil

	case ipc.FrameMetrics:
		return MetricsEvent{Identities: frame.Identities}, nil

	case ipc.FrameMFA:
		action, err := ParseMFAAction(frame.Action)
		if err != nil {
			return nil, err
		}
		decoded := MFAEvent{Action: action, Fingerprint: frame.Fingerprint}
		if frame.MFA != nil {
			decoded.Successful = frame.MFA.Successful
			decoded.ProvisioningURL = frame.MFA.ProvisioningURL
			decoded.RecoveryCodes = frame.MFA.RecoveryCodes
		}
		return decoded, nil

	case ipc.FrameServiceStatus:
		if frame.Monitor == nil {
			return nil, fmt.Errorf("missing monitor status")
		}
		return MonitorStatusEvent{Status: NewMonitorStatus(*frame.Monitor)}, nil

	case ipc.FrameShutdown:
		return ShutdownEvent{Source: source}, nil
	}
	return nil, fmt.Errorf("unknown frame type %q", frame.Type)
}
