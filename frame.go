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

import (
	"encoding/binary"
	"time"
)

// Bus addresses of the radio pair.
const (
	ReceiverAddress    byte = 0x60
	TransmitterAddress byte = 0x61
)

// Receiver opcodes.
const (
	RxGetTelemetry  byte = 0x1A
	RxGetFrameCount byte = 0x21
	RxGetFrame      byte = 0x22
	RxRemoveFrame   byte = 0x24
	RxGetUptime     byte = 0x40
	RxReset         byte = 0xAA
	RxHardwareReset byte = 0xAB
	RxWatchdogReset byte = 0xCC
)

// Transmitter opcodes.
const (
	TxSendFrame             byte = 0x10
	// TxSetBeacon is the native beacon opcode. Comm resends beacons as
	// ordinary frames; only the emulator and bridge hardware answer it.
	TxSetBeacon             byte = 0x14
	TxClearBeacon           byte = 0x1F
	TxSetIdleState          byte = 0x24
	TxGetTelemetryInstant   byte = 0x25
	TxGetTelemetryLastFrame byte = 0x26
	TxSetBitrate            byte = 0x28
	TxGetUptime             byte = 0x40
	TxGetState              byte = 0x41
	TxReset                 byte = 0xAA
	TxWatchdogReset         byte = 0xCC
)

// Frame and queue limits.
const (
	// MaxDownlinkFrameSize is the largest payload the transmitter accepts.
	MaxDownlinkFrameSize = 235
	// MaxUplinkFrameSize is the largest payload the receiver reports.
	MaxUplinkFrameSize = 200
	// FrameHeaderSize covers the size, doppler and RSSI fields.
	FrameHeaderSize = 6
	// PreferredBufferSize holds any uplink frame with its header.
	PreferredBufferSize = MaxUplinkFrameSize + FrameHeaderSize
	// MaxFrameCount is the receiver queue depth; larger counts are corrupt.
	MaxFrameCount = 64
	// TransmitterQueueSize is the number of frame slots in the transmitter.
	TransmitterQueueSize = 40

	// FreeSlotsRejected is the free-slot answer of a transmitter that
	// refused a frame.
	FreeSlotsRejected = 0xFF

	frameLengthSize = 2
)

// Frame is one received uplink frame. Its payload aliases the buffer passed
// to ReceiveFrame and is only valid until that buffer is reused.
type Frame struct {
	payload  []byte
	fullSize uint16
	doppler  uint16
	rssi     uint16
}

// NewFrame builds a frame from parsed fields. payload may be shorter than
// fullSize when the receive buffer could not hold the whole frame.
func NewFrame(doppler, rssi, fullSize uint16, payload []byte) Frame {
	return Frame{
		payload:  payload,
		fullSize: fullSize,
		doppler:  doppler,
		rssi:     rssi,
	}
}

// Size returns the number of payload bytes actually available.
func (f Frame) Size() int {
	return len(f.payload)
}

// FullSize returns the payload size reported by the receiver.
func (f Frame) FullSize() int {
	return int(f.fullSize)
}

// Doppler returns the raw doppler offset reading.
func (f Frame) Doppler() uint16 {
	return f.doppler
}

// RSSI returns the raw signal strength reading.
func (f Frame) RSSI() uint16 {
	return f.rssi
}

// Payload returns the available payload bytes.
func (f Frame) Payload() []byte {
	return f.payload
}

// Verify reports whether the frame metadata is plausible. The receiver marks
// corrupt frames with both doppler and RSSI at 0xFFFF.
func (f Frame) Verify() bool {
	return f.rssi != 0xFFFF || f.doppler != 0xFFFF
}

// parseFrame decodes as much of a GetFrame response as data holds.
func parseFrame(data []byte) Frame {
	var f Frame
	if len(data) >= 2 {
		f.fullSize = binary.LittleEndian.Uint16(data[0:2])
	}
	if len(data) >= 4 {
		f.doppler = binary.LittleEndian.Uint16(data[2:4])
	}
	if len(data) >= 6 {
		f.rssi = binary.LittleEndian.Uint16(data[4:6])
	}
	if len(data) > FrameHeaderSize {
		payload := data[FrameHeaderSize:]
		if len(payload) > int(f.fullSize) {
			payload = payload[:f.fullSize]
		}
		f.payload = payload
	} else {
		f.payload = data[len(data):]
	}
	return f
}

// Beacon is a payload retransmitted by the radio at a fixed interval.
type Beacon struct {
	Payload  []byte
	Interval time.Duration
}

// NewBeacon creates a beacon. The payload length is checked when the beacon
// is handed to the driver.
func NewBeacon(interval time.Duration, payload []byte) Beacon {
	return Beacon{Interval: interval, Payload: payload}
}

// BeaconResult is the three-valued outcome of SetBeacon.
type BeaconResult uint8

const (
	// BeaconFailed means the beacon was definitely not accepted.
	BeaconFailed BeaconResult = iota
	// BeaconSet means the transmitter queue was empty and the beacon is live.
	BeaconSet
	// BeaconIndeterminate means the beacon was queued behind other frames
	// and it is unknown whether it took effect.
	BeaconIndeterminate
)

func (r BeaconResult) String() string {
	switch r {
	case BeaconSet:
		return "set"
	case BeaconIndeterminate:
		return "indeterminate"
	case BeaconFailed:
		return "failed"
	default:
		return "unknown"
	}
}
