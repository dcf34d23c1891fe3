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

// Package i2c implements obc.Bus over a Linux I2C adapter using periph.io.
// Every Write, Read and WriteRead is a single bus transaction.
package i2c

import (
	"fmt"
	"strings"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// The radio boards run the bus in fast mode.
const maxClockFreq = 400 * physic.KiloHertz

// Bus implements obc.Bus on a periph I2C bus.
type Bus struct {
	bus     i2c.Bus
	closer  i2c.BusCloser
	lastErr error
	name    string
	mu      syncutil.Mutex
}

// parseBusPath strips an optional ":address" suffix, so "/dev/i2c-1:0x60"
// and "/dev/i2c-1" open the same adapter.
func parseBusPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens the named adapter. An empty name opens the first one found.
func New(busName string) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bc, err := i2creg.Open(parseBusPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	if err := bc.SetSpeed(maxClockFreq); err != nil {
		obc.Debugf("I2C bus %s keeps its default speed: %v", busName, err)
	}

	b := NewWithBus(bc, busName)
	b.closer = bc
	return b, nil
}

// NewWithBus wraps an already open periph bus. Close does not close it.
func NewWithBus(bus i2c.Bus, name string) *Bus {
	if name == "" {
		name = bus.String()
	}
	return &Bus{bus: bus, name: name}
}

// Write implements obc.Bus.
func (b *Bus) Write(address byte, data []byte) obc.BusResult {
	return b.tx(address, data, nil)
}

// Read implements obc.Bus.
func (b *Bus) Read(address byte, buf []byte) obc.BusResult {
	return b.tx(address, nil, buf)
}

// WriteRead implements obc.Bus. The read follows the write with a repeated
// start.
func (b *Bus) WriteRead(address byte, request, response []byte) obc.BusResult {
	return b.tx(address, request, response)
}

func (b *Bus) tx(address byte, w, r []byte) obc.BusResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bus == nil {
		b.lastErr = obc.ErrBusFailure
		return obc.BusFailure
	}
	err := b.bus.Tx(uint16(address), w, r)
	b.lastErr = err
	if err == nil {
		return obc.BusOK
	}
	result := classify(err)
	obc.Debugf("I2C %s @0x%02X: %s: %v", b.name, address, result, err)
	return result
}

// LastError returns the driver error of the most recent transaction, nil
// after a successful one.
func (b *Bus) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// String returns the bus name.
func (b *Bus) String() string {
	return b.name
}

// Close releases the adapter when New opened it.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bus = nil
	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.closer = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}
