// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
)

func webService() *Service {
	return newService(ipc.Service{
		Name:      "web",
		Protocols: []string{"tcp", "udp"},
		Addresses: []ipc.Address{
			{IsHost: true, Hostname: "web.internal"},
			{IP: "10.0.0.0", Prefix: 24},
		},
		Ports:         []ipc.PortRange{{Low: 443, High: 443}, {Low: 80, High: 80}},
		OwnsIntercept: true,
	})
}

func TestMatrixIsCartesianProduct(t *testing.T) {
	matrix := webService().Matrix()
	if len(matrix) != 2*2*2 {
		t.Fatalf("len(Matrix) = %d, want 8", len(matrix))
	}
	if first := matrix[0].String(); first != "TCP web.internal 443" {
		t.Errorf("first element = %q", first)
	}
	if last := matrix[7].String(); last != "UDP 10.0.0.0/24 80" {
		t.Errorf("last element = %q", last)
	}
}

func TestMatrixTracksMutation(t *testing.T) {
	svc := webService()
	svc.Matrix()
	svc.Ports = svc.Ports[:1]
	if got := len(svc.Matrix()); got != 4 {
		t.Errorf("len(Matrix) after mutation = %d, want 4", got)
	}
}

func TestServiceString(t *testing.T) {
	if got := webService().String(); got != "[TCP,UDP]:[10.0.0.0/24,web.internal]:[443,80]" {
		t.Errorf("String = %q", got)
	}

	single := newService(ipc.Service{Name: "ssh", Protocols: []string{"tcp"}, Ports: []ipc.PortRange{{Low: 22, High: 22}}})
	if got := single.String(); got != "TCP:<none>:22" {
		t.Errorf("String = %q", got)
	}
}

func TestServiceWarning(t *testing.T) {
	if warning := webService().Warning(); warning != "" {
		t.Errorf("owner has warning %q", warning)
	}
	shadowed := newService(ipc.Service{Name: "db", AssignedIP: "100.64.0.9"})
	if shadowed.Warning() == "" {
		t.Error("non-owner has no warning")
	}
}

func TestAggregateMetrics(t *testing.T) {
	totals := AggregateMetrics(event.MetricsEvent{Identities: []ipc.Identity{
		{Fingerprint: "F1", Metrics: &ipc.Metrics{Up: 100, Down: 200}},
		{Fingerprint: "F2", Metrics: &ipc.Metrics{Up: 50, Down: 0}},
		{Fingerprint: "F3"},
	}})
	if totals != (Totals{Up: 150, Down: 200}) {
		t.Errorf("totals = %+v, want {150 200}", totals)
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		value      int64
		wantAmount string
		wantSuffix string
	}{
		{0, "0.0", "bps"},
		{511, "511.0", "bps"},
		{512, "0.5", "kbps"},
		{1536, "1.5", "kbps"},
		{5 * 1024 * 1024, "5.0", "mbps"},
	}
	for _, test := range tests {
		amount, suffix := FormatRate(test.value)
		if amount != test.wantAmount || suffix != test.wantSuffix {
			t.Errorf("FormatRate(%d) = %s %s, want %s %s", test.value, amount, suffix, test.wantAmount, test.wantSuffix)
		}
	}
}
