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

package obc

import "fmt"

// BusResult is the outcome of a single bus transaction.
type BusResult uint8

const (
	// BusOK means the transaction completed.
	BusOK BusResult = iota
	// BusNack means the addressed device did not acknowledge.
	BusNack
	// BusTimeout means the device did not answer within the hardware timeout.
	BusTimeout
	// BusFailure is any other transfer failure.
	BusFailure
	// BusClockLatched means a device holds the clock line low.
	BusClockLatched
	// BusArbitrationLost means another master won the bus.
	BusArbitrationLost
	// BusBusy means the bus was not free to start a transfer.
	BusBusy
)

var busResultNames = [...]string{
	BusOK:              "ok",
	BusNack:            "nack",
	BusTimeout:         "timeout",
	BusFailure:         "failure",
	BusClockLatched:    "clock latched",
	BusArbitrationLost: "arbitration lost",
	BusBusy:            "busy",
}

func (r BusResult) String() string {
	if int(r) < len(busResultNames) {
		return busResultNames[r]
	}
	return fmt.Sprintf("bus result(%d)", uint8(r))
}

// Known reports whether r is one of the defined results.
func (r BusResult) Known() bool {
	return int(r) < len(busResultNames)
}

// OK reports whether the transaction succeeded.
func (r BusResult) OK() bool {
	return r == BusOK
}

// Err maps the result to its sentinel error, nil for BusOK.
func (r BusResult) Err() error {
	switch r {
	case BusOK:
		return nil
	case BusNack:
		return ErrBusNack
	case BusTimeout:
		return ErrBusTimeout
	case BusClockLatched:
		return ErrBusClockLatched
	case BusArbitrationLost:
		return ErrBusArbitrationLost
	case BusBusy:
		return ErrBusBusy
	case BusFailure:
		return ErrBusFailure
	default:
		return ErrBusFailure
	}
}

// Bus performs request/response transactions with 7-bit addressed devices.
// Implementations block for the duration of the hardware exchange and do no
// error counting of their own.
type Bus interface {
	Write(address byte, data []byte) BusResult
	Read(address byte, buf []byte) BusResult
	WriteRead(address byte, request, response []byte) BusResult
}

// WriteCommand sends a bare opcode.
func WriteCommand(bus Bus, address, opcode byte) BusResult {
	cmd := [1]byte{opcode}
	return bus.Write(address, cmd[:])
}

// FallbackBus routes transactions to a primary bus and repeats any that fail
// on a fallback bus. When both fail the fallback's result is reported.
type FallbackBus struct {
	primary  Bus
	fallback Bus
}

// NewFallbackBus pairs two buses.
func NewFallbackBus(primary, fallback Bus) *FallbackBus {
	return &FallbackBus{primary: primary, fallback: fallback}
}

// Write implements Bus.
func (b *FallbackBus) Write(address byte, data []byte) BusResult {
	if r := b.primary.Write(address, data); r == BusOK {
		return r
	}
	return b.fallback.Write(address, data)
}

// Read implements Bus.
func (b *FallbackBus) Read(address byte, buf []byte) BusResult {
	if r := b.primary.Read(address, buf); r == BusOK {
		return r
	}
	return b.fallback.Read(address, buf)
}

// WriteRead implements Bus.
func (b *FallbackBus) WriteRead(address byte, request, response []byte) BusResult {
	if r := b.primary.WriteRead(address, request, response); r == BusOK {
		return r
	}
	return b.fallback.WriteRead(address, request, response)
}
