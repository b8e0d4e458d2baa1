// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

// Frame types written on event streams.
const (
	FrameStatus        = "status"
	FrameIdentity      = "identity"
	FrameService       = "service"
	FrameMetrics       = "metrics"
	FrameMFA           = "mfa"
	FrameShutdown      = "shutdown"
	FrameServiceStatus = "service-status"
)

// Frame actions for identity and service frames.
const (
	FrameActionAdded   = "added"
	FrameActionRemoved = "removed"
)

// Frame actions for MFA frames.
const (
	MFAEnrollmentChallenge    = "enrollment_challenge"
	MFAEnrollmentVerification = "enrollment_verification"
	MFAEnrollmentRemove       = "enrollment_remove"
	MFAAuthChallenge          = "auth_challenge"
	MFAAuthStatus             = "mfa_auth_status"
)

// Frame is one pushed event. Which fields are set depends on Type:
//
//   - status: Status, APIVersion
//   - identity: Action, Identity
//   - service: Action, Fingerprint, Service
//   - metrics: Identities (Fingerprint, Name, Metrics only)
//   - mfa: Action, Fingerprint, MFA
//   - service-status: Monitor
//   - shutdown: nothing
type Frame struct {
	Type        string         `cbor:"type"`
	Action      string         `cbor:"action,omitempty"`
	Fingerprint string         `cbor:"fingerprint,omitempty"`
	Identity    *Identity      `cbor:"identity,omitempty"`
	Service     *Service       `cbor:"service,omitempty"`
	Identities  []Identity     `cbor:"identities,omitempty"`
	Status      *TunnelStatus  `cbor:"status,omitempty"`
	APIVersion  int            `cbor:"api_version,omitempty"`
	MFA         *MFAChallenge  `cbor:"mfa,omitempty"`
	Monitor     *MonitorStatus `cbor:"monitor,omitempty"`
}

// MFAChallenge carries the MFA-specific fields of an mfa frame.
type MFAChallenge struct {
	Successful      bool     `cbor:"successful"`
	ProvisioningURL string   `cbor:"provisioning_url,omitempty"`
	RecoveryCodes   []string `cbor:"recovery_codes,omitempty"`
}
