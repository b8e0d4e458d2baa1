// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

// Request actions understood by the data service.
const (
	ActionSubscribe      = "subscribe"
	ActionStatus         = "status"
	ActionAddIdentity    = "add-identity"
	ActionRemoveIdentity = "remove-identity"
	ActionIdentityOnOff  = "identity-on-off"
	ActionSetLogLevel    = "set-log-level"
	ActionTunnelState    = "tunnel-state"
	ActionEnableMFA      = "enable-mfa"
	ActionVerifyMFA      = "verify-mfa"
	ActionRemoveMFA      = "remove-mfa"
)

// Request actions understood by the monitor service, in addition to
// ActionSubscribe, ActionStatus and ActionSetLogLevel.
const (
	ActionStart          = "start"
	ActionStop           = "stop"
	ActionForceTerminate = "force-terminate"
	ActionCaptureLogs    = "capture-logs"
)

// Response codes carried in the response envelope. Zero is success.
const (
	CodeSuccess          = 0
	CodeUnknownError     = 1
	CodeCouldNotEnroll   = 2
	CodeIdentityNotFound = 3
	CodeCommandFailed    = 4
)

// AddIdentityRequest carries an enrollment token to the data service.
// The client passes the token text through untouched.
type AddIdentityRequest struct {
	Name       string `cbor:"name"`
	IsVerified bool   `cbor:"is_verified"`
	JWT        string `cbor:"jwt"`
}

// FingerprintRequest selects one identity.
type FingerprintRequest struct {
	Fingerprint string `cbor:"fingerprint"`
}

// OnOffRequest toggles either one identity (Fingerprint set) or the
// whole tunnel (tunnel-state, Fingerprint empty).
type OnOffRequest struct {
	Fingerprint string `cbor:"fingerprint,omitempty"`
	OnOff       bool   `cbor:"on_off"`
}

// LogLevelRequest sets a service's log level. Level is a
// lib/loglevel name.
type LogLevelRequest struct {
	Level string `cbor:"level"`
}

// MFACodeRequest submits a one-time code for MFA verification or
// removal.
type MFACodeRequest struct {
	Fingerprint string `cbor:"fingerprint"`
	Code        string `cbor:"code"`
}

// StatusResponse answers the data service's status action. It carries
// the same api version a status frame does.
type StatusResponse struct {
	APIVersion int          `cbor:"api_version"`
	Status     TunnelStatus `cbor:"status"`
}
