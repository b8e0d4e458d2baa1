// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import "testing"

func TestAddressString(t *testing.T) {
	tests := []struct {
		address Address
		want    string
	}{
		{Address{IsHost: true, Hostname: "wiki.internal"}, "wiki.internal"},
		{Address{IP: "10.0.0.5"}, "10.0.0.5"},
		{Address{IP: "10.0.0.5", Prefix: 32}, "10.0.0.5"},
		{Address{IP: "10.1.0.0", Prefix: 16}, "10.1.0.0/16"},
	}
	for _, test := range tests {
		if got := test.address.String(); got != test.want {
			t.Errorf("%+v.String() = %q, want %q", test.address, got, test.want)
		}
	}
}

func TestPortRangeString(t *testing.T) {
	tests := []struct {
		ports PortRange
		want  string
	}{
		{PortRange{Low: 443, High: 443}, "443"},
		{PortRange{Low: 22}, "22"},
		{PortRange{Low: 8000, High: 8100}, "8000-8100"},
	}
	for _, test := range tests {
		if got := test.ports.String(); got != test.want {
			t.Errorf("%+v.String() = %q, want %q", test.ports, got, test.want)
		}
	}
}
