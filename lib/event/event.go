// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"

	"github.com/bureau-foundation/edge-desktop/lib/ipc"
)

// ExpectedAPIVersion is the data service protocol version this client
// understands. A status snapshot reporting anything else is a fatal
// incompatibility.
const ExpectedAPIVersion = 1

// Source names the service connection an event came from.
type Source uint8

const (
	SourceData Source = iota + 1
	SourceMonitor
)

func (s Source) String() string {
	switch s {
	case SourceData:
		return "data"
	case SourceMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Event is implemented only by the types in this package.
type Event interface {
	isEvent()
}

// ClientConnected is published when a subscription stream connects.
type ClientConnected struct {
	Source Source
}

// ClientDisconnected is published when a subscription stream drops.
// Err is the read error that ended it.
type ClientDisconnected struct {
	Source Source
	Err    error
}

// IdentityEvent reports an identity added to or removed from the
// service. For removals only Fingerprint is guaranteed.
type IdentityEvent struct {
	Action      Action
	Fingerprint string
	Identity    ipc.Identity
}

// ServiceEvent reports a service added to or removed from one
// identity's service list.
type ServiceEvent struct {
	Action      Action
	Fingerprint string
	Service     ipc.Service
}

// MetricsEvent carries per-identity transfer counters. It does not
// describe the identity set; identities missing here still exist.
type MetricsEvent struct {
	Identities []ipc.Identity
}

// TunnelStatusEvent is a full snapshot of the data service.
type TunnelStatusEvent struct {
	APIVersion int
	Status     ipc.TunnelStatus
}

// CheckVersion returns a *VersionMismatchError unless the snapshot
// was produced by a compatible service.
func (e TunnelStatusEvent) CheckVersion() error {
	if e.APIVersion != ExpectedAPIVersion {
		return &VersionMismatchError{Expected: ExpectedAPIVersion, Got: e.APIVersion}
	}
	return nil
}

// MFAEvent is one step of an MFA enrollment or authentication flow.
type MFAEvent struct {
	Action          MFAAction
	Fingerprint     string
	Successful      bool
	ProvisioningURL string
	RecoveryCodes   []string
}

// MonitorStatusEvent reports a service-controller state change.
type MonitorStatusEvent struct {
	Status MonitorStatus
}

// ShutdownEvent means the service is going away on purpose.
type ShutdownEvent struct {
	Source Source
}

// ReconnectFailure is published after each failed reconnect attempt.
type ReconnectFailure struct {
	Source  Source
	Attempt int
	Err     error
}

// UpdateAvailable is published by the monitor client's version check
// when a newer release than the running one has been published.
type UpdateAvailable struct {
	Running string
	Latest  string
}

func (ClientConnected) isEvent()    {}
func (ClientDisconnected) isEvent() {}
func (IdentityEvent) isEvent()      {}
func (ServiceEvent) isEvent()       {}
func (MetricsEvent) isEvent()       {}
func (TunnelStatusEvent) isEvent()  {}
func (MFAEvent) isEvent()           {}
func (MonitorStatusEvent) isEvent() {}
func (ShutdownEvent) isEvent()      {}
func (ReconnectFailure) isEvent()   {}
func (UpdateAvailable) isEvent()    {}
