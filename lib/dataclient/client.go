// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataclient is the desktop client's connection to the data
// (tunnel) service: identity enrollment and toggling, tunnel state,
// log level and MFA requests, plus the service's pushed events
// republished as [event.Event] values.
//
// Events are published from the stream's delivery goroutine in the
// order the service sent them. Subscribers get immutable payloads and
// must do their own marshalling onto whatever goroutine owns their
// state.
package dataclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/service"
)

// Config configures a Client. Zero backoffs take the stream defaults.
type Config struct {
	Endpoint       service.Endpoint
	Clock          clock.Clock
	Logger         *slog.Logger
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client talks to the data service.
type Client struct {
	requests *service.ServiceClient
	stream   *service.EventStream
	hub      *event.Hub
	logger   *slog.Logger
}

// New returns an unconnected Client. Subscribe before Connect to see
// the status snapshot the service sends on every new subscription.
func New(config Config) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("service", "data")

	client := &Client{
		requests: service.NewServiceClient(config.Endpoint),
		hub:      event.NewHub(),
		logger:   logger,
	}
	client.stream = service.NewEventStream(service.StreamConfig{
		Endpoint:       config.Endpoint,
		Action:         ipc.ActionSubscribe,
		Clock:          config.Clock,
		Logger:         logger,
		InitialBackoff: config.InitialBackoff,
		MaxBackoff:     config.MaxBackoff,
		HandleFrame:    client.handleFrame,
		OnConnected: func() {
			client.hub.Publish(event.ClientConnected{Source: event.SourceData})
		},
		OnDisconnected: func(err error) {
			client.hub.Publish(event.ClientDisconnected{Source: event.SourceData, Err: err})
		},
		OnReconnectFailure: func(attempt int, err error) {
			client.hub.Publish(event.ReconnectFailure{Source: event.SourceData, Attempt: attempt, Err: err})
		},
	})
	return client
}

func (c *Client) handleFrame(frame codec.RawMessage) {
	decoded, err := event.Decode(event.SourceData, frame)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "error", err, "frame", codec.Diagnostic(frame))
		return
	}
	c.hub.Publish(decoded)
}

// Subscribe returns a new event subscription.
func (c *Client) Subscribe() *event.Subscription { return c.hub.Subscribe() }

// Connect opens the event subscription. A *service.ConnectionError
// whose Absent method reports true means the service is not
// installed or not running; use Reconnect to keep trying.
func (c *Client) Connect(ctx context.Context) error { return c.stream.Connect(ctx) }

// WaitForConnection blocks until the subscription is open.
func (c *Client) WaitForConnection(ctx context.Context) error {
	return c.stream.WaitForConnection(ctx)
}

// Reconnect retries the subscription with exponential backoff in the
// background. It does nothing while connected or already retrying.
func (c *Client) Reconnect(ctx context.Context) { c.stream.Reconnect(ctx) }

// Connected reports whether the subscription is open.
func (c *Client) Connected() bool { return c.stream.Connected() }

// Close drops the subscription and closes every subscriber channel.
func (c *Client) Close() error {
	c.hub.Close()
	return c.stream.Close()
}

// Status fetches a full snapshot. The caller checks its version.
func (c *Client) Status(ctx context.Context) (event.TunnelStatusEvent, error) {
	var response ipc.StatusResponse
	if err := c.requests.Call(ctx, ipc.ActionStatus, nil, &response); err != nil {
		return event.TunnelStatusEvent{}, err
	}
	return event.TunnelStatusEvent{APIVersion: response.APIVersion, Status: response.Status}, nil
}

// AddIdentity enrolls an identity from the raw content of an
// enrollment token. The token is passed through unparsed; rejection
// comes back as a *service.ServiceError whose Message and
// AdditionalInfo are meant for the user.
func (c *Client) AddIdentity(ctx context.Context, name string, isVerified bool, jwtContent string) (ipc.Identity, error) {
	var identity ipc.Identity
	err := c.requests.Call(ctx, ipc.ActionAddIdentity, map[string]any{
		"name":        name,
		"is_verified": isVerified,
		"jwt":         jwtContent,
	}, &identity)
	return identity, err
}

// IdentityOnOff enables or disables one identity.
func (c *Client) IdentityOnOff(ctx context.Context, fingerprint string, enabled bool) error {
	return c.requests.Call(ctx, ipc.ActionIdentityOnOff, map[string]any{
		"fingerprint": fingerprint,
		"on_off":      enabled,
	}, nil)
}

// RemoveIdentity forgets an identity on the service.
func (c *Client) RemoveIdentity(ctx context.Context, fingerprint string) error {
	return c.requests.Call(ctx, ipc.ActionRemoveIdentity, map[string]any{
		"fingerprint": fingerprint,
	}, nil)
}

// SetLogLevel changes the data service's log level.
func (c *Client) SetLogLevel(ctx context.Context, level loglevel.Level) error {
	return c.requests.Call(ctx, ipc.ActionSetLogLevel, map[string]any{
		"level": level.String(),
	}, nil)
}

// SetTunnelState turns the whole tunnel on or off.
func (c *Client) SetTunnelState(ctx context.Context, active bool) error {
	return c.requests.Call(ctx, ipc.ActionTunnelState, map[string]any{
		"on_off": active,
	}, nil)
}

// EnableMFA starts MFA enrollment for an identity. The challenge
// arrives as an MFAEvent.
func (c *Client) EnableMFA(ctx context.Context, fingerprint string) error {
	return c.requests.Call(ctx, ipc.ActionEnableMFA, map[string]any{
		"fingerprint": fingerprint,
	}, nil)
}

// VerifyMFA submits an authenticator code, completing enrollment or
// answering an authentication challenge.
func (c *Client) VerifyMFA(ctx context.Context, fingerprint, code string) error {
	return c.requests.Call(ctx, ipc.ActionVerifyMFA, map[string]any{
		"fingerprint": fingerprint,
		"code":        code,
	}, nil)
}

// RemoveMFA removes MFA from an identity. It needs a current code.
func (c *Client) RemoveMFA(ctx context.Context, fingerprint, code string) error {
	return c.requests.Call(ctx, ipc.ActionRemoveMFA, map[string]any{
		"fingerprint": fingerprint,
		"code":        code,
	}, nil)
}
