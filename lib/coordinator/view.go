// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"fmt"

	"github.com/bureau-foundation/edge-desktop/lib/session"
)

// ServiceState is the data service's condition as shown to the user.
type ServiceState uint8

const (
	// Connecting: no connection attempt has finished yet.
	Connecting ServiceState = iota
	// Available: connected and compatible.
	Available
	// Unavailable: the data service cannot be reached. Reconnection
	// continues in the background.
	Unavailable
	// NotStarted: the monitor reports the data service Stopped.
	NotStarted
	// Starting: the monitor reports StartPending.
	Starting
	// Stopping: a stop is in progress and Stop-Wait is polling.
	Stopping
	// Stuck: Stop-Wait ran out of time. ForceTerminate is offered.
	Stuck
	// Incompatible: the data service speaks another API version.
	// There is no automatic recovery.
	Incompatible
	// Upgrading: the monitor announced an upgrade and the client is
	// shutting down.
	Upgrading
)

var serviceStateNames = [...]string{
	Connecting:   "connecting",
	Available:    "available",
	Unavailable:  "not available",
	NotStarted:   "not started",
	Starting:     "starting",
	Stopping:     "stopping",
	Stuck:        "stuck",
	Incompatible: "incompatible",
	Upgrading:    "upgrading",
}

func (s ServiceState) String() string {
	if int(s) < len(serviceStateNames) {
		return serviceStateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// View is everything the presenter draws. Identities is a detached
// snapshot; the presenter may keep it.
type View struct {
	State ServiceState

	// StatusText is the monitor's last reported status, shown with
	// the stuck and not-started states.
	StatusText    string
	ReleaseStream string

	Identities []session.Identity
	Tunnel     session.Tunnel

	Traffic  session.Totals
	UpRate   string
	DownRate string

	// LatestVersion is set once a newer release has been found.
	LatestVersion string

	// Loading is true while any request is in flight.
	Loading bool

	// Notice is a one-line message from the last completed action,
	// such as the path of a captured log bundle.
	Notice string
}

// Alert is a dialog-style error for the user.
type Alert struct {
	Title   string
	Message string
	Detail  string
}

// Presenter draws views and alerts. Both methods are called on the
// coordinator's loop goroutine and must not block on it.
type Presenter interface {
	Repaint(View)
	ShowError(Alert)
}
