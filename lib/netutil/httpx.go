// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small network helpers shared by the socket
// transport and the release check.
//
// DecodeResponse and ErrorBody bound HTTP body reads at
// MaxResponseSize. IsExpectedCloseError classifies the errors a
// stream sees when its peer hangs up.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds HTTP response body reads. Release metadata
// is a few kilobytes.
const MaxResponseSize int64 = 1 << 20

// DecodeResponse reads at most MaxResponseSize bytes of body and
// JSON-decodes them into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns an error response body for use in a message.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
