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

package uart

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	obc "github.com/ZaparooProject/go-obc"
)

// Serve answers bridge requests read from rw by running them on bus. It is
// the emulator side of the protocol. Serve returns nil when rw reaches EOF
// and ctx.Err() once ctx is done; ctx is checked between reads.
func Serve(ctx context.Context, rw io.ReadWriter, bus obc.Bus) error {
	var header [requestHeaderSize]byte
	request := make([]byte, MaxTransfer)
	response := make([]byte, MaxTransfer)

	for {
		if err := serveRead(ctx, rw, header[:1]); err != nil {
			return endOfStream(err)
		}
		if header[0] != requestMarker {
			continue
		}
		if err := serveRead(ctx, rw, header[1:]); err != nil {
			return endOfStream(err)
		}

		kind, address := Kind(header[1]), header[2]
		wlen := int(binary.LittleEndian.Uint16(header[3:]))
		rlen := int(binary.LittleEndian.Uint16(header[5:]))
		if wlen > MaxTransfer || rlen > MaxTransfer {
			return fmt.Errorf("bridge request of %d/%d bytes exceeds %d", wlen, rlen, MaxTransfer)
		}
		if err := serveRead(ctx, rw, request[:wlen]); err != nil {
			return endOfStream(err)
		}

		w, r := request[:wlen], response[:rlen]
		clear(r)
		var result obc.BusResult
		switch kind {
		case KindWrite:
			result = bus.Write(address, w)
		case KindRead:
			result = bus.Read(address, r)
		case KindWriteRead:
			result = bus.WriteRead(address, w, r)
		default:
			obc.Warnf("bridge: unknown request kind 0x%02X", byte(kind))
			result = obc.BusFailure
		}

		reply := make([]byte, 0, responseHeaderSize+rlen)
		reply = append(reply, responseMarker, byte(result))
		reply = append(reply, r...)
		if _, err := rw.Write(reply); err != nil {
			return fmt.Errorf("bridge: failed to write response: %w", err)
		}
	}
}

// serveRead fills buf, tolerating the empty reads of a serial port.
func serveRead(ctx context.Context, r io.Reader, buf []byte) error {
	for got := 0; got < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[got:])
		got += n
		if err != nil && (got < len(buf) || !errors.Is(err, io.EOF)) {
			return err
		}
	}
	return nil
}

func endOfStream(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
