// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/netutil"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// StreamConfig configures an EventStream. Only Endpoint and
// HandleFrame are required.
type StreamConfig struct {
	Endpoint Endpoint

	// Action is sent as the subscribe request. Defaults to
	// "subscribe".
	Action string

	Clock  clock.Clock
	Logger *slog.Logger

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// HandleFrame receives every frame in arrival order, on the
	// delivery goroutine. It must not call Close.
	HandleFrame func(frame codec.RawMessage)

	// OnConnected runs on the delivery goroutine before the first
	// frame of each connection.
	OnConnected func()

	// OnDisconnected runs after a connection ends, unless the stream
	// was closed. err is the read error that ended it.
	OnDisconnected func(err error)

	// OnReconnectFailure runs after each failed reconnect attempt.
	// attempt counts from 1 within one reconnect cycle.
	OnReconnectFailure func(attempt int, err error)
}

// EventStream holds one long-lived subscription connection and
// redelivers its frames. After a disconnect the owner decides whether
// to call Reconnect; the stream never reconnects on its own.
type EventStream struct {
	config StreamConfig

	lifetime context.Context
	cancel   context.CancelFunc
	workers  sync.WaitGroup

	mu           sync.Mutex
	conn         net.Conn
	connected    chan struct{}
	closed       bool
	reconnecting bool
	generation   uint64
}

// NewEventStream returns an unconnected stream.
func NewEventStream(config StreamConfig) *EventStream {
	if config.Action == "" {
		config.Action = "subscribe"
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = max(defaultMaxBackoff, config.InitialBackoff)
	}
	if config.HandleFrame == nil {
		config.HandleFrame = func(codec.RawMessage) {}
	}

	lifetime, cancel := context.WithCancel(context.Background())
	return &EventStream{
		config:    config,
		lifetime:  lifetime,
		cancel:    cancel,
		connected: make(chan struct{}),
	}
}

// Connect dials the endpoint and sends the subscribe request. It is a
// no-op when already connected.
func (s *EventStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := s.config.Endpoint.dial(ctx)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(map[string]any{"action": s.config.Action}); err != nil {
		conn.Close()
		return &ProtocolError{Reason: "writing subscribe request", Err: err}
	}
	conn.SetWriteDeadline(time.Time{})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return ErrStreamClosed
	}
	if s.conn != nil {
		conn.Close()
		return nil
	}
	s.conn = conn
	s.reconnecting = false
	s.generation++
	close(s.connected)

	s.workers.Add(1)
	go s.deliver(conn)
	return nil
}

// Connected reports whether a subscription connection is open.
func (s *EventStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// WaitForConnection blocks until the stream is connected.
func (s *EventStream) WaitForConnection(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	connected := s.connected
	s.mu.Unlock()

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.lifetime.Done():
		return ErrStreamClosed
	}
}

// Reconnect starts a background reconnect cycle: wait, try, double
// the wait, until connected, ctx is done, or the stream is closed.
// Calling it while connected or while a cycle is running does nothing.
func (s *EventStream) Reconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn != nil || s.reconnecting {
		return
	}
	s.reconnecting = true
	s.generation++
	generation := s.generation

	s.workers.Add(1)
	go s.reconnectLoop(ctx, generation)
}

func (s *EventStream) reconnectLoop(ctx context.Context, generation uint64) {
	defer s.workers.Done()
	defer func() {
		s.mu.Lock()
		if s.generation == generation {
			s.reconnecting = false
		}
		s.mu.Unlock()
	}()

	backoff := s.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-s.config.Clock.After(backoff):
		case <-ctx.Done():
			return
		case <-s.lifetime.Done():
			return
		}

		s.mu.Lock()
		superseded := s.generation != generation
		s.mu.Unlock()
		if superseded {
			return
		}

		err := s.Connect(ctx)
		if err == nil || errors.Is(err, ErrStreamClosed) {
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.config.Logger.Debug("reconnect attempt failed",
			"endpoint", s.config.Endpoint.String(),
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if s.config.OnReconnectFailure != nil {
			s.config.OnReconnectFailure(attempt, err)
		}
		backoff = min(backoff*2, s.config.MaxBackoff)
	}
}

func (s *EventStream) deliver(conn net.Conn) {
	defer s.workers.Done()

	if s.config.OnConnected != nil {
		s.config.OnConnected()
	}

	decoder := codec.NewDecoder(conn)
	var readErr error
	for {
		var frame codec.RawMessage
		if err := decoder.Decode(&frame); err != nil {
			readErr = err
			break
		}
		s.config.HandleFrame(frame)
	}
	conn.Close()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.connected = make(chan struct{})
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}

	if netutil.IsExpectedCloseError(readErr) {
		s.config.Logger.Info("event stream disconnected", "endpoint", s.config.Endpoint.String())
	} else {
		readErr = &ProtocolError{Reason: "reading event frame", Err: readErr}
		s.config.Logger.Warn("event stream failed",
			"endpoint", s.config.Endpoint.String(),
			"error", readErr,
		)
	}
	if s.config.OnDisconnected != nil {
		s.config.OnDisconnected(readErr)
	}
}

// Close ends the subscription and any reconnect cycle, and waits for
// the delivery goroutine to return. No callbacks run after Close
// returns.
func (s *EventStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		if err := conn.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
			s.workers.Wait()
			return fmt.Errorf("closing event stream: %w", err)
		}
	}
	s.workers.Wait()
	return nil
}
