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

package testing

import (
	"encoding/binary"
	"sync"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/osal"
)

type uplinkFrame struct {
	payload []byte
	doppler uint16
	rssi    uint16
}

type failureKey struct {
	address byte
	opcode  byte
}

type injectedFailure struct {
	result obc.BusResult
	// remaining < 0 fails forever.
	remaining int
}

// VirtualRadio simulates the receiver and transmitter pair behind obc.Bus.
// Frames queued for downlink are transmitted on the next Write unless the
// transmitter is jammed.
type VirtualRadio struct {
	clock       osal.Clock
	failures    map[failureKey]*injectedFailure
	lastOpcode  map[byte]byte
	commands    map[failureKey]int
	rxQueue     []uplinkFrame
	txQueue     [][]byte
	transmitted [][]byte
	beacon      []byte
	rxBoot      time.Duration
	txBoot      time.Duration
	mu          sync.Mutex
	bitrate     obc.Bitrate
	idle        obc.IdleState
	jammed      bool
}

// NewVirtualRadio creates an idle radio. A nil clock uses the system clock.
func NewVirtualRadio(clock osal.Clock) *VirtualRadio {
	if clock == nil {
		clock = osal.NewSystemClock()
	}
	now := clock.Uptime()
	return &VirtualRadio{
		clock:      clock,
		failures:   make(map[failureKey]*injectedFailure),
		lastOpcode: make(map[byte]byte),
		commands:   make(map[failureKey]int),
		rxBoot:     now,
		txBoot:     now,
		bitrate:    obc.Bitrate1200,
	}
}

// QueueUplink adds a received frame. It reports false when the receiver
// queue is full.
func (v *VirtualRadio) QueueUplink(payload []byte, doppler, rssi uint16) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.rxQueue) >= obc.MaxFrameCount {
		return false
	}
	v.rxQueue = append(v.rxQueue, uplinkFrame{
		payload: append([]byte(nil), payload...),
		doppler: doppler,
		rssi:    rssi,
	})
	return true
}

// QueueCorruptUplink adds a frame with the invalid signal markers.
func (v *VirtualRadio) QueueCorruptUplink(payload []byte) bool {
	return v.QueueUplink(payload, 0xFFFF, 0xFFFF)
}

// PendingUplinks returns the receiver queue length.
func (v *VirtualRadio) PendingUplinks() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.rxQueue)
}

// SetJammed stops or restarts downlink transmission.
func (v *VirtualRadio) SetJammed(jammed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jammed = jammed
}

// Transmitted returns the frames sent so far, oldest first.
func (v *VirtualRadio) Transmitted() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.transmitted))
	copy(out, v.transmitted)
	return out
}

// FreeSlots returns the free transmitter queue slots.
func (v *VirtualRadio) FreeSlots() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return obc.TransmitterQueueSize - len(v.txQueue)
}

// Bitrate returns the configured downlink bit rate.
func (v *VirtualRadio) Bitrate() obc.Bitrate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bitrate
}

// IdleState returns the configured carrier idle state.
func (v *VirtualRadio) IdleState() obc.IdleState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.idle
}

// Beacon returns the active beacon payload, nil when none.
func (v *VirtualRadio) Beacon() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.beacon...)
}

// Commands returns how often opcode was written to address.
func (v *VirtualRadio) Commands(address, opcode byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commands[failureKey{address, opcode}]
}

// InjectFailure makes the next count transactions for opcode at address
// fail with result. A negative count fails until ClearFailures.
func (v *VirtualRadio) InjectFailure(address, opcode byte, result obc.BusResult, count int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[failureKey{address, opcode}] = &injectedFailure{result: result, remaining: count}
}

// ClearFailures removes all injected failures.
func (v *VirtualRadio) ClearFailures() {
	v.mu.Lock()
	defer v.mu.Unlock()
	clear(v.failures)
}

// Write implements obc.Bus.
func (v *VirtualRadio) Write(address byte, data []byte) obc.BusResult {
	return v.transact(address, data, nil)
}

// Read implements obc.Bus. The answer is for the last opcode written.
func (v *VirtualRadio) Read(address byte, buf []byte) obc.BusResult {
	return v.transact(address, nil, buf)
}

// WriteRead implements obc.Bus.
func (v *VirtualRadio) WriteRead(address byte, request, response []byte) obc.BusResult {
	return v.transact(address, request, response)
}

func (v *VirtualRadio) transact(address byte, request, response []byte) obc.BusResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	clear(response)
	if address != obc.ReceiverAddress && address != obc.TransmitterAddress {
		return obc.BusNack
	}

	opcode := v.lastOpcode[address]
	var args []byte
	if len(request) > 0 {
		opcode, args = request[0], request[1:]
		v.lastOpcode[address] = opcode
	}

	key := failureKey{address, opcode}
	if f := v.failures[key]; f != nil && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		return f.result
	}
	if len(request) > 0 {
		v.commands[key]++
	}

	if address == obc.ReceiverAddress {
		return v.receiver(opcode, response)
	}
	v.transmit()
	result := v.transmitter(opcode, args, response)
	v.transmit()
	return result
}

func (v *VirtualRadio) receiver(opcode byte, response []byte) obc.BusResult {
	switch opcode {
	case obc.RxGetFrameCount:
		putUint16(response, uint16(len(v.rxQueue)))
	case obc.RxGetFrame:
		if len(v.rxQueue) == 0 {
			return obc.BusOK
		}
		f := v.rxQueue[0]
		frame := make([]byte, obc.FrameHeaderSize, obc.FrameHeaderSize+len(f.payload))
		binary.LittleEndian.PutUint16(frame[0:], uint16(len(f.payload)))
		binary.LittleEndian.PutUint16(frame[2:], f.doppler)
		binary.LittleEndian.PutUint16(frame[4:], f.rssi)
		copy(response, append(frame, f.payload...))
	case obc.RxRemoveFrame:
		if len(v.rxQueue) > 0 {
			v.rxQueue = v.rxQueue[1:]
		}
	case obc.RxGetUptime:
		putUptime(response, v.clock.Uptime()-v.rxBoot)
	case obc.RxGetTelemetry:
		// Nominal housekeeping readings.
		for i, reading := range []uint16{0, 0x0400, 0x0210, 0x0C80, 0x0800, 0x0820, 0x0100} {
			putUint16(sub(response, 2*i), reading)
		}
	case obc.RxHardwareReset:
		v.rxQueue = nil
		v.txQueue = nil
		v.beacon = nil
		v.rxBoot = v.clock.Uptime()
		v.txBoot = v.rxBoot
	case obc.RxReset:
		v.rxQueue = nil
		v.rxBoot = v.clock.Uptime()
	case obc.RxWatchdogReset:
	default:
		return obc.BusNack
	}
	return obc.BusOK
}

func (v *VirtualRadio) transmitter(opcode byte, args, response []byte) obc.BusResult {
	switch opcode {
	case obc.TxSendFrame:
		free := byte(obc.FreeSlotsRejected)
		if len(v.txQueue) < obc.TransmitterQueueSize && len(args) <= obc.MaxDownlinkFrameSize {
			v.txQueue = append(v.txQueue, append([]byte(nil), args...))
			free = byte(obc.TransmitterQueueSize - len(v.txQueue))
		}
		if len(response) > 0 {
			response[0] = free
		}
	case obc.TxSetBeacon:
		if len(args) < 2 {
			return obc.BusFailure
		}
		v.beacon = append([]byte(nil), args[2:]...)
	case obc.TxClearBeacon:
		v.beacon = nil
	case obc.TxSetIdleState:
		if len(args) != 1 {
			return obc.BusFailure
		}
		v.idle = obc.IdleState(args[0] & 0x01)
	case obc.TxSetBitrate:
		if len(args) != 1 || !obc.Bitrate(args[0]).Valid() {
			return obc.BusFailure
		}
		v.bitrate = obc.Bitrate(args[0])
	case obc.TxGetUptime:
		putUptime(response, v.clock.Uptime()-v.txBoot)
	case obc.TxGetState:
		if len(response) > 0 {
			response[0] = v.stateByte()
		}
	case obc.TxGetTelemetryLastFrame, obc.TxGetTelemetryInstant:
		for i, reading := range []uint16{0x0010, 0x0700, 0x0300, 0x0520} {
			putUint16(sub(response, 2*i), reading)
		}
	case obc.TxReset:
		v.txQueue = nil
		v.txBoot = v.clock.Uptime()
	case obc.TxWatchdogReset:
	default:
		return obc.BusNack
	}
	return obc.BusOK
}

// transmit sends every queued frame unless jammed. Frames are transmitted
// between transactions so a send reports the slots its own frame occupies.
func (v *VirtualRadio) transmit() {
	if v.jammed {
		return
	}
	v.transmitted = append(v.transmitted, v.txQueue...)
	v.txQueue = v.txQueue[:0]
}

func (v *VirtualRadio) stateByte() byte {
	state := byte(v.idle)
	if v.beacon != nil {
		state |= 0x02
	}
	switch v.bitrate {
	case obc.Bitrate2400:
		state |= 1 << 2
	case obc.Bitrate4800:
		state |= 2 << 2
	case obc.Bitrate9600:
		state |= 3 << 2
	}
	return state
}

func sub(b []byte, off int) []byte {
	if off >= len(b) {
		return nil
	}
	return b[off:]
}

func putUint16(b []byte, v uint16) {
	if len(b) >= 2 {
		binary.LittleEndian.PutUint16(b, v)
	}
}

func putUptime(b []byte, d time.Duration) {
	if len(b) < 4 {
		return
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	b[0] = byte((d % time.Minute) / time.Second)
	b[1] = byte((d % time.Hour) / time.Minute)
	b[2] = byte(d / time.Hour)
	b[3] = byte(days)
}
