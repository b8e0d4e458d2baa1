// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package edgetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/service"
	"github.com/bureau-foundation/edge-desktop/lib/testutil"
)

// StartData serves a new DataService on a temporary socket for the
// duration of the test.
func StartData(t *testing.T, config DataConfig) (*DataService, service.Endpoint) {
	t.Helper()
	data := NewDataService(config)
	endpoint := service.UnixEndpoint(filepath.Join(testutil.SocketDir(t), "data.sock"))
	serveForTest(t, endpoint, data.Serve)
	return data, endpoint
}

// StartMonitor serves a new MonitorService on a temporary socket for
// the duration of the test.
func StartMonitor(t *testing.T, config MonitorConfig) (*MonitorService, service.Endpoint) {
	t.Helper()
	monitor := NewMonitorService(config)
	endpoint := service.UnixEndpoint(filepath.Join(testutil.SocketDir(t), "monitor.sock"))
	serveForTest(t, endpoint, monitor.Serve)
	return monitor, endpoint
}

type serveFunc func(ctx context.Context, endpoint service.Endpoint, ready chan<- struct{}) error

func serveForTest(t *testing.T, endpoint service.Endpoint, serve serveFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- serve(ctx, endpoint, ready) }()

	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "mock service shutdown"); err != nil {
			t.Errorf("mock service on %s: %v", endpoint, err)
		}
	})

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("mock service on %s exited early: %v", endpoint, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("mock service on %s never became ready", endpoint)
	}
}
