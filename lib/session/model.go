// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
)

// Change tells the owner how much of the view a fold affected.
type Change uint8

const (
	// Unchanged: nothing to repaint.
	Unchanged Change = iota
	// Updated: existing entries changed in place.
	Updated
	// Refreshed: the identity set gained or lost members.
	Refreshed
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Refreshed:
		return "refreshed"
	default:
		return fmt.Sprintf("change(%d)", uint8(c))
	}
}

// MFA is an identity's multi-factor state.
type MFA struct {
	Enrolled      bool
	RecoveryCodes []string

	// ProvisioningURL is set between an enrollment challenge and its
	// verification.
	ProvisioningURL string

	// Required is set while the service waits for an authentication
	// code before it will serve this identity.
	Required bool
}

// Identity is one enrolled identity and the services it exposes.
type Identity struct {
	Fingerprint   string
	Name          string
	ControllerURL string
	Enabled       bool
	MFA           *MFA
	Services      []*Service
}

func (i *Identity) clone() Identity {
	clone := *i
	if i.MFA != nil {
		mfa := *i.MFA
		mfa.RecoveryCodes = slices.Clone(i.MFA.RecoveryCodes)
		clone.MFA = &mfa
	}
	clone.Services = make([]*Service, len(i.Services))
	for index, svc := range i.Services {
		clone.Services[index] = svc.clone()
	}
	return clone
}

// Service returns the named service.
func (i *Identity) Service(name string) (*Service, bool) {
	for _, svc := range i.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return nil, false
}

// Tunnel describes the tunnel interface as of the last status
// snapshot.
type Tunnel struct {
	// Active is true when at least one identity is enabled.
	Active bool

	IP       string
	Subnet   string
	MTU      uint16
	DNS      string
	LogLevel loglevel.Level

	// ConnectedSince is zero unless some identity is enabled.
	ConnectedSince time.Time
}

// Elapsed formats the time since ConnectedSince as HH:MM:SS, or
// "00:00:00" when not connected.
func (t Tunnel) Elapsed(now time.Time) string {
	if t.ConnectedSince.IsZero() || now.Before(t.ConnectedSince) {
		return "00:00:00"
	}
	seconds := int64(now.Sub(t.ConnectedSince) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

// Model is the session state. Create with New.
type Model struct {
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	identities []*Identity
	tunnel     Tunnel
	loaded     bool
}

// New returns an empty model.
func New(clk clock.Clock, logger *slog.Logger) *Model {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{clock: clk, logger: logger}
}

// Apply folds any data-service event. Events the model does not hold
// state for return Unchanged.
func (m *Model) Apply(ev event.Event) (Change, error) {
	switch typed := ev.(type) {
	case event.IdentityEvent:
		return m.ApplyIdentity(typed), nil
	case event.ServiceEvent:
		return m.ApplyService(typed), nil
	case event.TunnelStatusEvent:
		return m.ApplyStatus(typed)
	case event.MFAEvent:
		return m.ApplyMFA(typed), nil
	}
	return Unchanged, nil
}

// ApplyIdentity folds an identity event. An added identity that is
// new is appended and reported as Refreshed. An added identity that
// is already known keeps its object and services; its name,
// controller URL and enabled flag are overwritten. Removing an
// unknown fingerprint does nothing.
func (m *Model) ApplyIdentity(ev event.IdentityEvent) Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.trackActiveLocked(m.activeLocked())

	switch ev.Action {
	case event.Added:
		if existing := m.findLocked(ev.Fingerprint); existing != nil {
			existing.Name = ev.Identity.Name
			existing.ControllerURL = ev.Identity.ControllerURL
			existing.Enabled = ev.Identity.Active
			return Updated
		}
		m.identities = append(m.identities, newIdentity(ev.Fingerprint, ev.Identity, m.logger))
		return Refreshed

	case event.Removed:
		before := len(m.identities)
		m.identities = slices.DeleteFunc(m.identities, func(identity *Identity) bool {
			return identity.Fingerprint == ev.Fingerprint
		})
		if len(m.identities) == before {
			return Unchanged
		}
		return Refreshed
	}
	return Unchanged
}

// ApplyService folds a service event. Events for unknown identities
// are dropped, as are additions of a name the identity already has.
// Removal deletes every service with the exact name.
func (m *Model) ApplyService(ev event.ServiceEvent) Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity := m.findLocked(ev.Fingerprint)
	if identity == nil {
		m.logger.Warn("service event for unknown identity",
			"action", ev.Action.String(),
			"fingerprint", ev.Fingerprint,
			"service", ev.Service.Name,
		)
		return Unchanged
	}

	switch ev.Action {
	case event.Added:
		if _, exists := identity.Service(ev.Service.Name); exists {
			m.logger.Debug("duplicate service dropped",
				"fingerprint", ev.Fingerprint,
				"service", ev.Service.Name,
			)
			return Unchanged
		}
		identity.Services = append(identity.Services, newService(ev.Service))
		return Updated

	case event.Removed:
		before := len(identity.Services)
		identity.Services = slices.DeleteFunc(identity.Services, func(svc *Service) bool {
			return svc.Name == ev.Service.Name
		})
		if len(identity.Services) == before {
			return Unchanged
		}
		return Updated
	}
	return Unchanged
}

// ApplyStatus replaces the whole model with a status snapshot. A
// snapshot from an incompatible service returns a
// *event.VersionMismatchError and leaves the model untouched.
func (m *Model) ApplyStatus(ev event.TunnelStatusEvent) (Change, error) {
	if err := ev.CheckVersion(); err != nil {
		return Unchanged, err
	}

	rebuilt := make([]*Identity, 0, len(ev.Status.Identities))
	for _, wire := range ev.Status.Identities {
		index := slices.IndexFunc(rebuilt, func(identity *Identity) bool {
			return identity.Fingerprint == wire.Fingerprint
		})
		if index >= 0 {
			rebuilt[index].Name = wire.Name
			rebuilt[index].ControllerURL = wire.ControllerURL
			rebuilt[index].Enabled = wire.Active
			continue
		}
		rebuilt = append(rebuilt, newIdentity(wire.Fingerprint, wire, m.logger))
	}

	tunnel := Tunnel{}
	if ev.Status.IPInfo != nil {
		tunnel.IP = ev.Status.IPInfo.IP
		tunnel.Subnet = ev.Status.IPInfo.Subnet
		tunnel.MTU = ev.Status.IPInfo.MTU
		tunnel.DNS = ev.Status.IPInfo.DNS
	}
	if level, err := loglevel.Parse(ev.Status.LogLevel); err == nil {
		tunnel.LogLevel = level
	} else if ev.Status.LogLevel != "" {
		m.logger.Warn("status reported unknown log level", "level", ev.Status.LogLevel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities = rebuilt
	// Active follows the enabled identities, so the snapshot's own flag
	// only decides whether its reported duration can be trusted.
	if m.activeLocked() {
		now := m.clock.Now()
		tunnel.ConnectedSince = now
		if ev.Status.Active {
			tunnel.ConnectedSince = now.Add(-time.Duration(ev.Status.Duration) * time.Millisecond)
		}
	}
	m.tunnel = tunnel
	m.loaded = true
	return Refreshed, nil
}

// ApplyMFA folds one step of an MFA flow into the identity's MFA
// state. Events for unknown identities are dropped.
func (m *Model) ApplyMFA(ev event.MFAEvent) Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity := m.findLocked(ev.Fingerprint)
	if identity == nil {
		m.logger.Warn("mfa event for unknown identity", "action", ev.Action.String(), "fingerprint", ev.Fingerprint)
		return Unchanged
	}
	if identity.MFA == nil {
		identity.MFA = &MFA{}
	}
	mfa := identity.MFA

	switch ev.Action {
	case event.EnrollmentChallenge:
		mfa.ProvisioningURL = ev.ProvisioningURL
		mfa.RecoveryCodes = slices.Clone(ev.RecoveryCodes)
	case event.EnrollmentVerification:
		if !ev.Successful {
			return Unchanged
		}
		mfa.Enrolled = true
		mfa.ProvisioningURL = ""
		if len(ev.RecoveryCodes) > 0 {
			mfa.RecoveryCodes = slices.Clone(ev.RecoveryCodes)
		}
	case event.EnrollmentRemove:
		if !ev.Successful {
			return Unchanged
		}
		identity.MFA = nil
	case event.AuthChallenge:
		mfa.Required = true
	case event.AuthStatus:
		mfa.Required = !ev.Successful
	default:
		return Unchanged
	}
	return Updated
}

// SetIdentityEnabled records the outcome of a toggle request. It
// reports false if the identity is gone, which is not an error: the
// service may have removed it while the request was in flight.
func (m *Model) SetIdentityEnabled(fingerprint string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity := m.findLocked(fingerprint)
	if identity == nil {
		return false
	}
	defer m.trackActiveLocked(m.activeLocked())
	identity.Enabled = enabled
	return true
}

// SetAllEnabled sets every identity's enabled flag.
func (m *Model) SetAllEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.trackActiveLocked(m.activeLocked())
	for _, identity := range m.identities {
		identity.Enabled = enabled
	}
}

// Fingerprints returns the identity fingerprints in model order.
func (m *Model) Fingerprints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	fingerprints := make([]string, len(m.identities))
	for i, identity := range m.identities {
		fingerprints[i] = identity.Fingerprint
	}
	return fingerprints
}

// Identity returns a copy of one identity.
func (m *Model) Identity(fingerprint string) (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity := m.findLocked(fingerprint)
	if identity == nil {
		return Identity{}, false
	}
	return identity.clone(), true
}

// Snapshot copies the identity set for display, sorted by name
// (case-insensitive) then fingerprint.
func (m *Model) Snapshot() []Identity {
	m.mu.Lock()
	snapshot := make([]Identity, len(m.identities))
	for i, identity := range m.identities {
		snapshot[i] = identity.clone()
	}
	m.mu.Unlock()

	slices.SortFunc(snapshot, func(a, b Identity) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.Fingerprint, b.Fingerprint),
		)
	})
	return snapshot
}

// Len returns the number of identities.
func (m *Model) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities)
}

// Loaded reports whether a status snapshot has been applied.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Tunnel returns the tunnel details. Active is derived from the
// identities' enabled flags.
func (m *Model) Tunnel() Tunnel {
	m.mu.Lock()
	defer m.mu.Unlock()
	tunnel := m.tunnel
	tunnel.Active = m.activeLocked()
	return tunnel
}

// TunnelActive reports whether any identity is enabled.
func (m *Model) TunnelActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

// SetLogLevel records a log level change made by the owner.
func (m *Model) SetLogLevel(level loglevel.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tunnel.LogLevel = level
}

func (m *Model) activeLocked() bool {
	return slices.ContainsFunc(m.identities, func(identity *Identity) bool {
		return identity.Enabled
	})
}

// trackActiveLocked starts or clears the connected-since time when
// the tunnel turns on or off.
func (m *Model) trackActiveLocked(wasActive bool) {
	switch active := m.activeLocked(); {
	case active && !wasActive:
		m.tunnel.ConnectedSince = m.clock.Now()
	case !active:
		m.tunnel.ConnectedSince = time.Time{}
	}
}

func (m *Model) findLocked(fingerprint string) *Identity {
	for _, identity := range m.identities {
		if identity.Fingerprint == fingerprint {
			return identity
		}
	}
	return nil
}

func newIdentity(fingerprint string, wire ipc.Identity, logger *slog.Logger) *Identity {
	identity := &Identity{
		Fingerprint:   fingerprint,
		Name:          wire.Name,
		ControllerURL: wire.ControllerURL,
		Enabled:       wire.Active,
	}
	if wire.MFA != nil {
		identity.MFA = &MFA{
			Enrolled:      wire.MFA.Enrolled,
			RecoveryCodes: slices.Clone(wire.MFA.RecoveryCodes),
		}
	}
	for _, svc := range wire.Services {
		if _, exists := identity.Service(svc.Name); exists {
			logger.Debug("duplicate service dropped", "fingerprint", fingerprint, "service", svc.Name)
			continue
		}
		identity.Services = append(identity.Services, newService(svc))
	}
	return identity
}
