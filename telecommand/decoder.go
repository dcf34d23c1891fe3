// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telecommand decodes uplink frames and dispatches them to the
// registered commands. Every accepted command is answered with a downlink
// frame of the form [code, status, data...].
package telecommand

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the security code plus the command code.
const HeaderSize = 5

var (
	// ErrMalformedFrame is returned for frames too short to hold a header.
	ErrMalformedFrame = errors.New("malformed telecommand frame")
	// ErrInvalidSecurityCode is returned when the frame is not signed with
	// the configured security code.
	ErrInvalidSecurityCode = errors.New("invalid telecommand security code")
)

// Command is a decoded telecommand. Params aliases the frame payload.
type Command struct {
	Params []byte
	Code   byte
}

// Decoder validates and splits uplink frames.
type Decoder struct {
	securityCode uint32
}

// NewDecoder creates a decoder accepting frames signed with securityCode.
func NewDecoder(securityCode uint32) *Decoder {
	return &Decoder{securityCode: securityCode}
}

// Decode splits payload into a command. The layout is a big-endian 4-byte
// security code, the command code, then the parameters.
func (d *Decoder) Decode(payload []byte) (Command, error) {
	if len(payload) < HeaderSize {
		return Command{}, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(payload))
	}
	if code := binary.BigEndian.Uint32(payload); code != d.securityCode {
		return Command{}, fmt.Errorf("%w: 0x%08X", ErrInvalidSecurityCode, code)
	}
	return Command{Code: payload[4], Params: payload[HeaderSize:]}, nil
}

// Encode builds an uplink frame. It is the inverse of Decode and is used by
// ground tooling and tests.
func (d *Decoder) Encode(code byte, params []byte) []byte {
	frame := make([]byte, HeaderSize, HeaderSize+len(params))
	binary.BigEndian.PutUint32(frame, d.securityCode)
	frame[4] = code
	return append(frame, params...)
}
