// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/netutil"
)

// ActionFunc handles one request. raw is the full CBOR request map,
// including "action". A nil result answers {ok: true}. Returning a
// *ServiceError controls the code and messages of the failure
// response; any other error is answered with code 1.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc serves a long-lived stream. It writes frames with
// encoder until it returns. ctx is cancelled when the server shuts
// down or the client hangs up.
type StreamFunc func(ctx context.Context, raw []byte, encoder *codec.Encoder) error

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 1024 * 1024
)

// SocketServer serves request actions and stream actions on one
// listener. Register every action before Serve.
type SocketServer struct {
	endpoint Endpoint
	handlers map[string]ActionFunc
	streams  map[string]StreamFunc
	logger   *slog.Logger

	ready             chan struct{}
	activeConnections sync.WaitGroup
}

// NewSocketServer returns a server for endpoint.
func NewSocketServer(endpoint Endpoint, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		endpoint: endpoint,
		handlers: make(map[string]ActionFunc),
		streams:  make(map[string]StreamFunc),
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Handle registers a request/response action. Panics on duplicates.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkUnregistered(action)
	s.handlers[action] = handler
}

// HandleStream registers a streaming action. Panics on duplicates.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.checkUnregistered(action)
	s.streams[action] = handler
}

func (s *SocketServer) checkUnregistered(action string) {
	_, isRequest := s.handlers[action]
	_, isStream := s.streams[action]
	if isRequest || isStream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Ready is closed once the listener is accepting connections.
func (s *SocketServer) Ready() <-chan struct{} { return s.ready }

// Serve listens and dispatches until ctx is cancelled, then waits for
// in-flight connections. A stale Unix socket file is replaced, and
// removed again on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if s.endpoint.Network == "unix" {
		if err := os.Remove(s.endpoint.Address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket %s: %w", s.endpoint.Address, err)
		}
	}

	listener, err := net.Listen(s.endpoint.Network, s.endpoint.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.endpoint, err)
	}
	defer func() {
		listener.Close()
		if s.endpoint.Network == "unix" {
			os.Remove(s.endpoint.Address)
		}
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "endpoint", s.endpoint.String())
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, &ServiceError{Code: 1, Message: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	conn.SetReadDeadline(time.Time{})

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil || header.Action == "" {
		s.writeError(conn, &ServiceError{Code: 1, Message: "missing required field: action"})
		return
	}

	if stream, ok := s.streams[header.Action]; ok {
		s.serveStream(ctx, conn, header.Action, stream, raw)
		return
	}

	handler, ok := s.handlers[header.Action]
	if !ok {
		s.writeError(conn, &ServiceError{Code: 1, Message: fmt.Sprintf("unknown action %q", header.Action)})
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		var serviceErr *ServiceError
		if !errors.As(err, &serviceErr) {
			serviceErr = &ServiceError{Code: 1, Message: err.Error()}
		}
		s.writeError(conn, serviceErr)
		return
	}
	s.writeSuccess(conn, result)
}

// serveStream runs a stream handler. A reader goroutine watches for
// the client hanging up; stream clients never write after subscribing.
func (s *SocketServer) serveStream(ctx context.Context, conn net.Conn, action string, stream StreamFunc, raw []byte) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		io.Copy(io.Discard, conn)
	}()
	stop := context.AfterFunc(streamCtx, func() { conn.Close() })
	defer stop()

	err := stream(streamCtx, raw, codec.NewEncoder(conn))
	if err != nil && streamCtx.Err() == nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Warn("stream ended with error", "action", action, "error", err)
	}
}

func (s *SocketServer) writeError(conn net.Conn, serviceErr *ServiceError) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:      false,
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Error:   serviceErr.AdditionalInfo,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, &ServiceError{Code: 1, Message: fmt.Sprintf("internal: marshaling response: %v", err)})
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
