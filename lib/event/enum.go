// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/edge-desktop/lib/ipc"
)

// Action is the change an IdentityEvent or ServiceEvent describes.
type Action uint8

const (
	Added Action = iota + 1
	Removed
)

// ParseAction maps a frame action string to an Action.
func ParseAction(value string) (Action, error) {
	switch value {
	case ipc.FrameActionAdded:
		return Added, nil
	case ipc.FrameActionRemoved:
		return Removed, nil
	}
	return 0, fmt.Errorf("unknown action %q", value)
}

func (a Action) String() string {
	switch a {
	case Added:
		return ipc.FrameActionAdded
	case Removed:
		return ipc.FrameActionRemoved
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// MFAAction is the step of an MFA flow an MFAEvent describes.
type MFAAction uint8

const (
	EnrollmentChallenge MFAAction = iota + 1
	EnrollmentVerification
	EnrollmentRemove
	AuthChallenge
	AuthStatus
)

var mfaActionNames = map[MFAAction]string{
	EnrollmentChallenge:    ipc.MFAEnrollmentChallenge,
	EnrollmentVerification: ipc.MFAEnrollmentVerification,
	EnrollmentRemove:       ipc.MFAEnrollmentRemove,
	AuthChallenge:          ipc.MFAAuthChallenge,
	AuthStatus:             ipc.MFAAuthStatus,
}

// ParseMFAAction maps a frame action string to an MFAAction.
func ParseMFAAction(value string) (MFAAction, error) {
	for action, name := range mfaActionNames {
		if name == value {
			return action, nil
		}
	}
	return 0, fmt.Errorf("unknown mfa action %q", value)
}

func (a MFAAction) String() string {
	if name, ok := mfaActionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("mfa-action(%d)", uint8(a))
}

// ServiceStatus mirrors the OS service-controller states. Anything
// the monitor reports outside this set parses as StatusUnknown.
type ServiceStatus uint8

const (
	StatusUnknown ServiceStatus = iota
	StatusRunning
	StatusStopped
	StatusStartPending
	StatusStopPending
	StatusPausePending
	StatusPaused
)

var serviceStatusNames = [...]string{
	StatusUnknown:      "Unknown",
	StatusRunning:      "Running",
	StatusStopped:      "Stopped",
	StatusStartPending: "StartPending",
	StatusStopPending:  "StopPending",
	StatusPausePending: "PausePending",
	StatusPaused:       "Paused",
}

// ParseServiceStatus matches value case-insensitively. ok is false
// for unrecognized values, which map to StatusUnknown.
func ParseServiceStatus(value string) (status ServiceStatus, ok bool) {
	for candidate, name := range serviceStatusNames {
		if candidate != int(StatusUnknown) && strings.EqualFold(name, value) {
			return ServiceStatus(candidate), true
		}
	}
	return StatusUnknown, false
}

func (s ServiceStatus) String() string {
	if int(s) < len(serviceStatusNames) {
		return serviceStatusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// MonitorStatus is the decoded form of the monitor's status payload:
// the answer to every lifecycle command and the body of every
// service-status frame.
type MonitorStatus struct {
	Code    int
	Message string
	Error   string

	Status ServiceStatus
	// RawStatus is the status string as sent, kept for display when
	// Status is StatusUnknown.
	RawStatus string

	ReleaseStream string
}

// NewMonitorStatus converts the wire payload.
func NewMonitorStatus(wire ipc.MonitorStatus) MonitorStatus {
	status, _ := ParseServiceStatus(wire.Status)
	return MonitorStatus{
		Code:          wire.Code,
		Message:       wire.Message,
		Error:         wire.Error,
		Status:        status,
		RawStatus:     wire.Status,
		ReleaseStream: wire.ReleaseStream,
	}
}

// Upgrading reports the monitor's planned-handoff signal: the client
// should shut down because the service is being upgraded.
func (s MonitorStatus) Upgrading() bool {
	return strings.EqualFold(strings.TrimSpace(s.Message), "upgrading")
}

// Stopped reports whether the data service is fully stopped.
func (s MonitorStatus) Stopped() bool {
	return s.Status == StatusStopped
}
