// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"slices"
	"strings"

	"github.com/bureau-foundation/edge-desktop/lib/ipc"
)

const none = "<none>"

// Service is a network resource reachable through an identity.
// Protocols are stored upper-cased.
type Service struct {
	Name          string
	Protocols     []string
	Addresses     []ipc.Address
	Ports         []ipc.PortRange
	OwnsIntercept bool
	AssignedIP    string
}

// MatrixElement is one protocol/address/port combination a service
// intercepts.
type MatrixElement struct {
	Protocol string
	Address  string
	Ports    string
}

func (m MatrixElement) String() string {
	return m.Protocol + " " + m.Address + " " + m.Ports
}

func newService(wire ipc.Service) *Service {
	protocols := make([]string, len(wire.Protocols))
	for i, protocol := range wire.Protocols {
		protocols[i] = strings.ToUpper(protocol)
	}
	return &Service{
		Name:          wire.Name,
		Protocols:     protocols,
		Addresses:     slices.Clone(wire.Addresses),
		Ports:         slices.Clone(wire.Ports),
		OwnsIntercept: wire.OwnsIntercept,
		AssignedIP:    wire.AssignedIP,
	}
}

func (s *Service) clone() *Service {
	clone := *s
	clone.Protocols = slices.Clone(s.Protocols)
	clone.Addresses = slices.Clone(s.Addresses)
	clone.Ports = slices.Clone(s.Ports)
	return &clone
}

// Matrix is the cartesian product protocols × addresses × ports, in
// that nesting order. It is computed on every call, so it always
// reflects the current lists.
func (s *Service) Matrix() []MatrixElement {
	matrix := make([]MatrixElement, 0, len(s.Protocols)*len(s.Addresses)*len(s.Ports))
	for _, protocol := range s.Protocols {
		for _, address := range s.Addresses {
			for _, port := range s.Ports {
				matrix = append(matrix, MatrixElement{
					Protocol: strings.ToUpper(protocol),
					Address:  address.String(),
					Ports:    port.String(),
				})
			}
		}
	}
	return matrix
}

// Warning is non-empty when another identity owns this service's
// intercept, so the service is only reachable by its assigned IP.
func (s *Service) Warning() string {
	if s.OwnsIntercept {
		return ""
	}
	if s.AssignedIP != "" {
		return "another identity intercepts this address; reachable only via " + s.AssignedIP
	}
	return "another identity intercepts this address"
}

// String renders PROTOCOLS:ADDRESSES:PORTS. A list of more than one
// is bracketed; addresses and ports are sorted. Empty lists render as
// <none>.
func (s *Service) String() string {
	addresses := make([]string, len(s.Addresses))
	for i, address := range s.Addresses {
		addresses[i] = address.String()
	}
	ports := make([]string, len(s.Ports))
	for i, port := range s.Ports {
		ports[i] = port.String()
	}
	slices.Sort(addresses)
	slices.Sort(ports)
	return joinList(s.Protocols) + ":" + joinList(addresses) + ":" + joinList(ports)
}

func joinList(values []string) string {
	switch len(values) {
	case 0:
		return none
	case 1:
		return values[0]
	}
	return "[" + strings.Join(values, ",") + "]"
}
