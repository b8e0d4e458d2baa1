// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"net"
	"time"
)

// dialTimeout bounds the connect phase only.
const dialTimeout = 5 * time.Second

// Endpoint names one service socket. Network is "unix" for the
// installed services; "tcp" is accepted for development setups.
type Endpoint struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`
}

// UnixEndpoint is shorthand for a Unix socket endpoint.
func UnixEndpoint(path string) Endpoint {
	return Endpoint{Network: "unix", Address: path}
}

func (e Endpoint) String() string {
	return e.Network + ":" + e.Address
}

func (e Endpoint) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, e.Network, e.Address)
	if err != nil {
		return nil, &ConnectionError{Endpoint: e, Err: err}
	}
	return conn, nil
}
