// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/hex"
	"io"
	"log/slog"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Enumerations (log levels, service-controller states, event
	// actions) travel as their text names via MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Request envelopes are decoded into map[string]any by the
		// socket server; CBOR's default map[any]any would not index
		// by string.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a single CBOR item from data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder writes a sequence of CBOR items to a stream. CBOR items are
// self-delimiting, so a stream of frames needs no extra framing.
type Encoder = cbor.Encoder

// Decoder reads a sequence of CBOR items from a stream.
type Decoder = cbor.Decoder

// RawMessage is an undecoded CBOR item. Stream readers decode frames
// into RawMessage first so that a malformed frame can be reported and
// skipped without losing the position in the stream.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose renders data in CBOR diagnostic notation (RFC 8949 §8).
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// Diagnostic is a log attribute value for raw CBOR. It is rendered in
// diagnostic notation only when the record is emitted, and as hex if
// the bytes are not well-formed CBOR.
type Diagnostic []byte

func (d Diagnostic) LogValue() slog.Value {
	notation, err := Diagnose(d)
	if err != nil {
		return slog.StringValue(hex.EncodeToString(d))
	}
	return slog.StringValue(notation)
}
