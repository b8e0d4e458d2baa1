// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/edge-desktop/lib/service"
)

// ProtocolError is the transport's protocol error; the decoder uses
// it for frames it cannot turn into an Event.
type ProtocolError = service.ProtocolError

// ErrVersionMismatch matches every *VersionMismatchError.
var ErrVersionMismatch = errors.New("incompatible service api version")

// VersionMismatchError reports a status snapshot from an incompatible
// data service. It is fatal to the session, never retried.
type VersionMismatchError struct {
	Expected int
	Got      int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("incompatible service api version: expected %d, got %d", e.Expected, e.Got)
}

func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}
