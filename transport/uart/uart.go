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

// Package uart implements obc.Bus over a serial bridge to a radio emulator
// or a USB-I2C adapter running the bridge firmware.
//
// A request is [0xA5, kind, address, wlen(LE16), rlen(LE16), data...] and
// the answer is [0x5A, result, data...] with exactly rlen data bytes.
package uart

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/internal/syncutil"
	"go.bug.st/serial"
)

const (
	requestMarker  = 0xA5
	responseMarker = 0x5A

	requestHeaderSize  = 7
	responseHeaderSize = 2

	// MaxTransfer bounds each direction of one transaction.
	MaxTransfer = 512

	// DefaultBaudRate is the bridge line speed.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds the wait for a complete answer.
	DefaultTimeout = 100 * time.Millisecond

	// readPoll is the serial read timeout; reads return empty after it.
	readPoll = 10 * time.Millisecond
)

// Kind is the transaction shape carried in a request.
type Kind byte

const (
	KindWrite     Kind = 'W'
	KindRead      Kind = 'R'
	KindWriteRead Kind = 'X'
)

var errBridgeClosed = errors.New("uart bridge closed")

// Bus implements obc.Bus over the bridge protocol.
type Bus struct {
	port    io.ReadWriter
	lastErr error
	name    string
	timeout time.Duration
	mu      syncutil.Mutex
	closed  bool
}

// New opens the serial port and configures it for the bridge.
func New(portName string) (*Bus, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		obc.Debugf("UART %s: input buffer not flushed: %v", portName, err)
	}
	return NewWithPort(port, portName), nil
}

// NewWithPort runs the protocol over an open connection. Reads are expected
// to return (0, nil) when no data arrives in time, as serial ports do.
func NewWithPort(port io.ReadWriter, name string) *Bus {
	return &Bus{port: port, name: name, timeout: DefaultTimeout}
}

// SetTimeout changes the answer timeout.
func (b *Bus) SetTimeout(timeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = timeout
}

// Write implements obc.Bus.
func (b *Bus) Write(address byte, data []byte) obc.BusResult {
	return b.tx(KindWrite, address, data, nil)
}

// Read implements obc.Bus.
func (b *Bus) Read(address byte, buf []byte) obc.BusResult {
	return b.tx(KindRead, address, nil, buf)
}

// WriteRead implements obc.Bus.
func (b *Bus) WriteRead(address byte, request, response []byte) obc.BusResult {
	return b.tx(KindWriteRead, address, request, response)
}

// LastError returns the link error of the most recent transaction.
func (b *Bus) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// String returns the port name.
func (b *Bus) String() string {
	return b.name
}

// Close closes the port when it supports closing.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if c, ok := b.port.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close UART port: %w", err)
		}
	}
	return nil
}

func (b *Bus) tx(kind Kind, address byte, w, r []byte) obc.BusResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	result, err := b.exchange(kind, address, w, r)
	b.lastErr = err
	if err != nil {
		obc.Debugf("UART %s @0x%02X: %s: %v", b.name, address, result, err)
	}
	return result
}

func (b *Bus) exchange(kind Kind, address byte, w, r []byte) (obc.BusResult, error) {
	if b.closed {
		return obc.BusFailure, errBridgeClosed
	}
	if len(w) > MaxTransfer || len(r) > MaxTransfer {
		return obc.BusFailure, fmt.Errorf("transfer of %d/%d bytes exceeds %d", len(w), len(r), MaxTransfer)
	}

	if _, err := b.port.Write(EncodeRequest(kind, address, w, len(r))); err != nil {
		return obc.BusFailure, fmt.Errorf("failed to write request: %w", err)
	}

	deadline := time.Now().Add(b.timeout)
	if err := b.syncResponse(deadline); err != nil {
		return linkResult(err), err
	}

	var header [1]byte
	if err := b.readFull(header[:], deadline); err != nil {
		return linkResult(err), err
	}
	if err := b.readFull(r, deadline); err != nil {
		return linkResult(err), err
	}

	result := obc.BusResult(header[0])
	if !result.Known() {
		clear(r)
		return obc.BusFailure, fmt.Errorf("unknown bridge result 0x%02X", header[0])
	}
	if !result.OK() {
		clear(r)
		return result, result.Err()
	}
	return obc.BusOK, nil
}

func linkResult(err error) obc.BusResult {
	if errors.Is(err, obc.ErrBusTimeout) {
		return obc.BusTimeout
	}
	return obc.BusFailure
}

// syncResponse discards bytes until the response marker.
func (b *Bus) syncResponse(deadline time.Time) error {
	var marker [1]byte
	for {
		if err := b.readFull(marker[:], deadline); err != nil {
			return err
		}
		if marker[0] == responseMarker {
			return nil
		}
		obc.Debugf("UART %s: skipping stray byte 0x%02X", b.name, marker[0])
	}
}

func (b *Bus) readFull(buf []byte, deadline time.Time) error {
	for got := 0; got < len(buf); {
		n, err := b.port.Read(buf[got:])
		got += n
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if got < len(buf) && time.Now().After(deadline) {
			return fmt.Errorf("response incomplete after %d of %d bytes: %w", got, len(buf), obc.ErrBusTimeout)
		}
		if n == 0 && errors.Is(err, io.EOF) {
			time.Sleep(readPoll)
		}
	}
	return nil
}

// EncodeRequest builds one request frame.
func EncodeRequest(kind Kind, address byte, w []byte, rlen int) []byte {
	frame := make([]byte, requestHeaderSize, requestHeaderSize+len(w))
	frame[0] = requestMarker
	frame[1] = byte(kind)
	frame[2] = address
	binary.LittleEndian.PutUint16(frame[3:], uint16(len(w)))
	binary.LittleEndian.PutUint16(frame[5:], uint16(rlen))
	return append(frame, w...)
}
