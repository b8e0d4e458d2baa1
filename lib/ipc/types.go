// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"fmt"
	"strconv"
)

// Identity is one enrolled overlay-network principal as reported by
// the data service.
type Identity struct {
	Name          string    `cbor:"name"`
	Fingerprint   string    `cbor:"fingerprint"`
	ControllerURL string    `cbor:"controller_url,omitempty"`
	Active        bool      `cbor:"active"`
	MFA           *MFAInfo  `cbor:"mfa,omitempty"`
	Services      []Service `cbor:"services,omitempty"`
	Metrics       *Metrics  `cbor:"metrics,omitempty"`
}

// MFAInfo is the MFA enrollment state of an identity.
type MFAInfo struct {
	Enrolled      bool     `cbor:"enrolled"`
	RecoveryCodes []string `cbor:"recovery_codes,omitempty"`
}

// Metrics are cumulative byte rates for one identity.
type Metrics struct {
	Up   int64 `cbor:"up"`
	Down int64 `cbor:"down"`
}

// Service is a network resource reachable through an identity.
type Service struct {
	Name          string      `cbor:"name"`
	Protocols     []string    `cbor:"protocols,omitempty"`
	Addresses     []Address   `cbor:"addresses,omitempty"`
	Ports         []PortRange `cbor:"ports,omitempty"`
	OwnsIntercept bool        `cbor:"owns_intercept"`
	AssignedIP    string      `cbor:"assigned_ip,omitempty"`
}

// Address is an intercept address: a hostname or an IP/CIDR.
type Address struct {
	IsHost   bool   `cbor:"is_host"`
	Hostname string `cbor:"hostname,omitempty"`
	IP       string `cbor:"ip,omitempty"`
	Prefix   int    `cbor:"prefix,omitempty"`
}

func (a Address) String() string {
	if a.IsHost {
		return a.Hostname
	}
	if a.Prefix > 0 && a.Prefix < 32 {
		return fmt.Sprintf("%s/%d", a.IP, a.Prefix)
	}
	return a.IP
}

// PortRange is an inclusive port range. Low == High for one port.
type PortRange struct {
	Low  int `cbor:"low"`
	High int `cbor:"high"`
}

func (p PortRange) String() string {
	if p.High == 0 || p.Low == p.High {
		return strconv.Itoa(p.Low)
	}
	return fmt.Sprintf("%d-%d", p.Low, p.High)
}

// IPInfo describes the tunnel interface.
type IPInfo struct {
	IP     string `cbor:"ip"`
	Subnet string `cbor:"subnet"`
	MTU    uint16 `cbor:"mtu"`
	DNS    string `cbor:"dns"`
}

// TunnelStatus is the data service's full snapshot.
type TunnelStatus struct {
	Active bool `cbor:"active"`
	// Duration is milliseconds since the tunnel started.
	Duration   int64      `cbor:"duration"`
	LogLevel   string     `cbor:"log_level,omitempty"`
	IPInfo     *IPInfo    `cbor:"ip_info,omitempty"`
	Identities []Identity `cbor:"identities,omitempty"`
}

// MonitorStatus is the monitor service's answer to every lifecycle
// command and the payload of its service-status frames. Status is an
// OS service-controller state name ("Running", "Stopped", ...).
type MonitorStatus struct {
	Code          int    `cbor:"code"`
	Message       string `cbor:"message,omitempty"`
	Error         string `cbor:"error,omitempty"`
	Status        string `cbor:"status,omitempty"`
	ReleaseStream string `cbor:"release_stream,omitempty"`
}
