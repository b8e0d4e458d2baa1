// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/codec"
)

// responseReadTimeout covers handler execution on the service side.
// Enrollment talks to a remote controller, so it is generous.
const responseReadTimeout = 60 * time.Second

// maxResponseSize bounds a single response envelope.
const maxResponseSize = 1024 * 1024

// Response is the envelope answering every request. Code zero is
// success; Message and Error are human-readable and may be set on
// success too.
type Response struct {
	OK      bool             `cbor:"ok"`
	Code    int              `cbor:"code,omitempty"`
	Message string           `cbor:"message,omitempty"`
	Error   string           `cbor:"error,omitempty"`
	Data    codec.RawMessage `cbor:"data,omitempty"`
}

// ServiceClient sends one-shot requests to a service endpoint. Each
// Call opens its own connection, so a ServiceClient is safe for
// concurrent use and holds no connection state.
type ServiceClient struct {
	endpoint Endpoint
}

// NewServiceClient returns a client for endpoint.
func NewServiceClient(endpoint Endpoint) *ServiceClient {
	return &ServiceClient{endpoint: endpoint}
}

// Endpoint returns the endpoint the client calls.
func (c *ServiceClient) Endpoint() Endpoint { return c.endpoint }

// Call sends {action, ...fields} and waits for the response. When the
// response is ok and result is non-nil, the response data is decoded
// into result.
//
// Errors: *ConnectionError if the endpoint cannot be reached,
// *ServiceError if the service answered ok=false, *ProtocolError if
// the exchange broke after connecting.
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return err
	}

	if !response.OK {
		return &ServiceError{
			Action:         action,
			Code:           response.Code,
			Message:        response.Message,
			AdditionalInfo: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return &ProtocolError{Reason: fmt.Sprintf("decoding %q response data", action), Err: err}
		}
	}
	return nil
}

func (c *ServiceClient) send(ctx context.Context, request map[string]any) (*Response, error) {
	conn, err := c.endpoint.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Abort a blocked read if the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, &ProtocolError{Reason: "writing request", Err: err}
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProtocolError{Reason: "reading response", Err: err}
	}
	return &response, nil
}
