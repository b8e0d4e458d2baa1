// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// ConnectionError reports that an endpoint could not be reached.
type ConnectionError struct {
	Endpoint Endpoint
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Absent reports whether the endpoint does not exist or nothing is
// listening on it: the service is not installed or is stopped. Any
// other connection failure is presumed transient.
func (e *ConnectionError) Absent() bool {
	return errors.Is(e.Err, fs.ErrNotExist) ||
		errors.Is(e.Err, syscall.ENOENT) ||
		errors.Is(e.Err, syscall.ECONNREFUSED)
}

// ServiceError is returned when the service rejected a well-formed
// request. Message and AdditionalInfo are shown to the user verbatim.
type ServiceError struct {
	Action         string
	Code           int
	Message        string
	AdditionalInfo string
}

func (e *ServiceError) Error() string {
	if e.AdditionalInfo == "" {
		return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
	}
	return fmt.Sprintf("service error on %q: %s (%s)", e.Action, e.Message, e.AdditionalInfo)
}

// ProtocolError reports bytes that could not be understood: a
// truncated response, a malformed frame, or an incompatible version.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "protocol error: " + e.Reason
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrStreamClosed is returned by EventStream operations after Close.
var ErrStreamClosed = errors.New("event stream closed")
