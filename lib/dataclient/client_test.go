// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/edgetest"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/service"
	"github.com/bureau-foundation/edge-desktop/lib/testutil"
)

const eventTimeout = 5 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// connectedClient starts a mock data service and returns a client
// subscribed and connected to it, with the initial ClientConnected
// and status snapshot already consumed.
func connectedClient(t *testing.T) (*Client, *event.Subscription, *edgetest.DataService) {
	t.Helper()
	data, endpoint := edgetest.StartData(t, edgetest.DataConfig{Logger: quietLogger()})

	client := New(Config{Endpoint: endpoint, Logger: quietLogger()})
	t.Cleanup(func() { client.Close() })
	subscription := client.Subscribe()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvent[event.ClientConnected](t, subscription)
	expectEvent[event.TunnelStatusEvent](t, subscription)
	return client, subscription, data
}

func expectEvent[T event.Event](t *testing.T, subscription *event.Subscription) T {
	t.Helper()
	received := testutil.RequireReceive(t, subscription.C, eventTimeout, "waiting for %T", *new(T))
	typed, ok := received.(T)
	if !ok {
		t.Fatalf("received %T (%+v), want %T", received, received, *new(T))
	}
	return typed
}

func enroll(t *testing.T, client *Client, subject string) ipc.Identity {
	t.Helper()
	token, err := edgetest.EnrollmentToken("https://ctrl.example", subject)
	if err != nil {
		t.Fatalf("EnrollmentToken: %v", err)
	}
	identity, err := client.AddIdentity(context.Background(), subject, false, token)
	if err != nil {
		t.Fatalf("AddIdentity: %v", err)
	}
	return identity
}

func TestConnectAbsentService(t *testing.T) {
	endpoint := service.UnixEndpoint(filepath.Join(testutil.SocketDir(t), "data.sock"))
	client := New(Config{Endpoint: endpoint, Logger: quietLogger()})
	defer client.Close()

	err := client.Connect(context.Background())
	var connectionErr *service.ConnectionError
	if !errors.As(err, &connectionErr) || !connectionErr.Absent() {
		t.Fatalf("err = %v, want absent *ConnectionError", err)
	}
	if client.Connected() {
		t.Error("Connected() = true after failed Connect")
	}
}

func TestInitialSnapshotCarriesAPIVersion(t *testing.T) {
	_, endpoint := edgetest.StartData(t, edgetest.DataConfig{Logger: quietLogger()})
	client := New(Config{Endpoint: endpoint, Logger: quietLogger()})
	defer client.Close()
	subscription := client.Subscribe()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvent[event.ClientConnected](t, subscription)
	status := expectEvent[event.TunnelStatusEvent](t, subscription)
	if err := status.CheckVersion(); err != nil {
		t.Errorf("CheckVersion: %v", err)
	}
	if !status.Status.Active || status.Status.IPInfo == nil {
		t.Errorf("status = %+v", status.Status)
	}
}

func TestAddIdentityPublishesAdded(t *testing.T) {
	client, subscription, _ := connectedClient(t)

	identity := enroll(t, client, "laptop")
	if identity.Fingerprint != edgetest.Fingerprint("https://ctrl.example", "laptop") {
		t.Errorf("Fingerprint = %q", identity.Fingerprint)
	}

	added := expectEvent[event.IdentityEvent](t, subscription)
	if added.Action != event.Added || added.Fingerprint != identity.Fingerprint {
		t.Errorf("IdentityEvent = %+v", added)
	}
}

func TestAddIdentityRejected(t *testing.T) {
	client, _, _ := connectedClient(t)

	_, err := client.AddIdentity(context.Background(), "broken", false, "eyJ.garbage")
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("err = %v, want *ServiceError", err)
	}
	if serviceErr.Code != ipc.CodeCouldNotEnroll {
		t.Errorf("Code = %d, want %d", serviceErr.Code, ipc.CodeCouldNotEnroll)
	}
}

func TestIdentityOnOffUnknownFingerprint(t *testing.T) {
	client, _, _ := connectedClient(t)

	err := client.IdentityOnOff(context.Background(), "nope", true)
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code != ipc.CodeIdentityNotFound {
		t.Fatalf("err = %v, want identity-not-found ServiceError", err)
	}
}

// An identity removed by the service right after the client enabled
// it must arrive as a plain removal, with no error on either request.
func TestToggleThenPushedRemoval(t *testing.T) {
	client, subscription, data := connectedClient(t)
	ctx := context.Background()

	identity := enroll(t, client, "F1")
	expectEvent[event.IdentityEvent](t, subscription)

	if err := client.IdentityOnOff(ctx, identity.Fingerprint, true); err != nil {
		t.Fatalf("IdentityOnOff: %v", err)
	}
	enabled := expectEvent[event.IdentityEvent](t, subscription)
	if enabled.Action != event.Added || !enabled.Identity.Active {
		t.Errorf("after toggle: %+v", enabled)
	}

	data.RemoveIdentity(identity.Fingerprint)
	removed := expectEvent[event.IdentityEvent](t, subscription)
	if removed.Action != event.Removed || removed.Fingerprint != identity.Fingerprint {
		t.Errorf("after removal: %+v", removed)
	}
}

func TestRequestsReachService(t *testing.T) {
	client, subscription, data := connectedClient(t)
	ctx := context.Background()

	if err := client.SetLogLevel(ctx, loglevel.Trace); err != nil {
		t.Fatalf("SetLogLevel: %v", err)
	}
	if data.LogLevel() != loglevel.Trace {
		t.Errorf("service log level = %v", data.LogLevel())
	}

	if err := client.SetTunnelState(ctx, false); err != nil {
		t.Fatalf("SetTunnelState: %v", err)
	}
	if data.TunnelActive() {
		t.Error("tunnel still active")
	}

	identity := enroll(t, client, "phone")
	expectEvent[event.IdentityEvent](t, subscription)
	if err := client.RemoveIdentity(ctx, identity.Fingerprint); err != nil {
		t.Fatalf("RemoveIdentity: %v", err)
	}
	if _, ok := data.Identity(identity.Fingerprint); ok {
		t.Error("identity still present after RemoveIdentity")
	}
}

func TestStatusRequest(t *testing.T) {
	client, subscription, _ := connectedClient(t)
	enroll(t, client, "desk")
	expectEvent[event.IdentityEvent](t, subscription)

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.APIVersion != event.ExpectedAPIVersion || len(status.Status.Identities) != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestMFAEnrollmentFlow(t *testing.T) {
	client, subscription, data := connectedClient(t)
	ctx := context.Background()
	identity := enroll(t, client, "mfa")
	expectEvent[event.IdentityEvent](t, subscription)

	if err := client.EnableMFA(ctx, identity.Fingerprint); err != nil {
		t.Fatalf("EnableMFA: %v", err)
	}
	challenge := expectEvent[event.MFAEvent](t, subscription)
	if challenge.Action != event.EnrollmentChallenge || challenge.ProvisioningURL == "" {
		t.Errorf("challenge = %+v", challenge)
	}

	if err := client.VerifyMFA(ctx, identity.Fingerprint, "000000"); err == nil {
		t.Error("VerifyMFA accepted a wrong code")
	}
	if failed := expectEvent[event.MFAEvent](t, subscription); failed.Successful {
		t.Errorf("wrong code reported successful: %+v", failed)
	}

	if err := client.VerifyMFA(ctx, identity.Fingerprint, edgetest.MFACode); err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}
	verified := expectEvent[event.MFAEvent](t, subscription)
	if verified.Action != event.EnrollmentVerification || !verified.Successful {
		t.Errorf("verification = %+v", verified)
	}
	if stored, _ := data.Identity(identity.Fingerprint); stored.MFA == nil || !stored.MFA.Enrolled {
		t.Errorf("service MFA = %+v", stored.MFA)
	}

	if err := client.RemoveMFA(ctx, identity.Fingerprint, edgetest.MFACode); err != nil {
		t.Fatalf("RemoveMFA: %v", err)
	}
	if removed := expectEvent[event.MFAEvent](t, subscription); removed.Action != event.EnrollmentRemove {
		t.Errorf("removal = %+v", removed)
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	_, subscription, data := connectedClient(t)

	data.PushFrame(ipc.Frame{Type: ipc.FrameIdentity, Action: "updated", Fingerprint: "F1"})
	data.PushFrame(ipc.Frame{Type: ipc.FrameShutdown})

	expectEvent[event.ShutdownEvent](t, subscription)
}

// lockedBuffer collects log output written from the stream goroutine.
type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func TestMalformedFrameIsLoggedInDiagnosticNotation(t *testing.T) {
	data, endpoint := edgetest.StartData(t, edgetest.DataConfig{Logger: quietLogger()})
	var output lockedBuffer
	client := New(Config{Endpoint: endpoint, Logger: slog.New(slog.NewTextHandler(&output, nil))})
	t.Cleanup(func() { client.Close() })
	subscription := client.Subscribe()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvent[event.ClientConnected](t, subscription)
	expectEvent[event.TunnelStatusEvent](t, subscription)

	data.PushFrame(ipc.Frame{Type: ipc.FrameIdentity, Action: "updated", Fingerprint: "F1"})
	data.PushFrame(ipc.Frame{Type: ipc.FrameShutdown})
	// Frames are handled in order, so the warning is written by now.
	expectEvent[event.ShutdownEvent](t, subscription)

	logged := output.String()
	if !strings.Contains(logged, "dropping undecodable frame") {
		t.Fatalf("no drop warning:\n%s", logged)
	}
	if !strings.Contains(logged, "frame=") || !strings.Contains(logged, "updated") {
		t.Errorf("drop warning lacks the frame in diagnostic notation:\n%s", logged)
	}
}

func TestShutdownThenReconnect(t *testing.T) {
	client, subscription, data := connectedClient(t)

	data.Shutdown()
	if shutdown := expectEvent[event.ShutdownEvent](t, subscription); shutdown.Source != event.SourceData {
		t.Errorf("Source = %v", shutdown.Source)
	}
	expectEvent[event.ClientDisconnected](t, subscription)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect after shutdown: %v", err)
	}
	expectEvent[event.ClientConnected](t, subscription)
	expectEvent[event.TunnelStatusEvent](t, subscription)
}

func TestReconnectWhileConnectedIsNoOp(t *testing.T) {
	client, subscription, data := connectedClient(t)

	client.Reconnect(context.Background())
	if data.Subscribers() != 1 {
		t.Errorf("Subscribers = %d, want 1", data.Subscribers())
	}
	testutil.RequireNoReceive(t, subscription.C, 50*time.Millisecond, "event after no-op Reconnect")
}

func TestMetricsEvent(t *testing.T) {
	client, subscription, data := connectedClient(t)
	first := enroll(t, client, "one")
	expectEvent[event.IdentityEvent](t, subscription)
	second := enroll(t, client, "two")
	expectEvent[event.IdentityEvent](t, subscription)

	if err := data.SetMetrics(first.Fingerprint, 100, 200); err != nil {
		t.Fatal(err)
	}
	if err := data.SetMetrics(second.Fingerprint, 50, 0); err != nil {
		t.Fatal(err)
	}
	data.PushMetrics()

	metrics := expectEvent[event.MetricsEvent](t, subscription)
	if len(metrics.Identities) != 2 {
		t.Fatalf("metrics identities = %+v", metrics.Identities)
	}
}
