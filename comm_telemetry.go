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
	"errors"
	"time"
)

const (
	uptimeSize                = 4
	receiverTelemetrySize     = 14
	transmissionTelemetrySize = 8
)

// IdleState is the transmitter carrier state between frames.
type IdleState uint8

const (
	// IdleOff turns the carrier off when the queue is empty.
	IdleOff IdleState = iota
	// IdleOn keeps the carrier on when the queue is empty.
	IdleOn
)

func (s IdleState) String() string {
	if s == IdleOn {
		return "on"
	}
	return "off"
}

// Bitrate is the downlink bit rate as a multiple of 1200 bps.
type Bitrate uint8

// Supported bit rates.
const (
	Bitrate1200 Bitrate = 1
	Bitrate2400 Bitrate = 2
	Bitrate4800 Bitrate = 4
	Bitrate9600 Bitrate = 8
)

// Valid reports whether the transmitter supports b.
func (b Bitrate) Valid() bool {
	switch b {
	case Bitrate1200, Bitrate2400, Bitrate4800, Bitrate9600:
		return true
	default:
		return false
	}
}

// BitsPerSecond returns the bit rate in bits per second.
func (b Bitrate) BitsPerSecond() int {
	return int(b) * 1200
}

// TransmitterState is the decoded transmitter state byte.
type TransmitterState struct {
	StateWhenIdle IdleState
	Bitrate       Bitrate
	BeaconActive  bool
}

func parseTransmitterState(v byte) TransmitterState {
	return TransmitterState{
		StateWhenIdle: IdleState(v & 0x01),
		BeaconActive:  v&0x02 != 0,
		Bitrate:       Bitrate(1 << ((v >> 2) & 0x03)),
	}
}

// ReceiverTelemetry holds receiver housekeeping values. Fields are raw ADC
// readings.
type ReceiverTelemetry struct {
	Uptime                        time.Duration
	LastReceivedDoppler           uint16
	LastReceivedRSSI              uint16
	NowDopplerOffset              uint16
	NowReceiverCurrentConsumption uint16
	NowVoltage                    uint16
	NowOscillatorTemperature      uint16
	NowAmplifierTemperature       uint16
	NowRSSI                       uint16
}

// TransmissionTelemetry describes the conditions during the last transmitted
// frame.
type TransmissionTelemetry struct {
	ReflectedPower       uint16
	AmplifierTemperature uint16
	ForwardPower         uint16
	CurrentConsumption   uint16
}

// TransmitterTelemetry holds transmitter housekeeping values.
type TransmitterTelemetry struct {
	Uptime                time.Duration
	State                 TransmitterState
	LastTransmission      TransmissionTelemetry
	NowForwardPower       uint16
	NowCurrentConsumption uint16
}

// CommTelemetry combines receiver and transmitter telemetry.
type CommTelemetry struct {
	Receiver    ReceiverTelemetry
	Transmitter TransmitterTelemetry
}

// parseUptime decodes seconds, minutes, hours and days.
func parseUptime(data []byte) time.Duration {
	return time.Duration(data[0])*time.Second +
		time.Duration(data[1])*time.Minute +
		time.Duration(data[2])*time.Hour +
		time.Duration(data[3])*24*time.Hour
}

// GetTransmitterState reads the transmitter state byte.
func (c *Comm) GetTransmitterState() (TransmitterState, error) {
	state, err := c.transmitterState()
	return state, c.track(err)
}

func (c *Comm) transmitterState() (TransmitterState, error) {
	request := [1]byte{TxGetState}
	var response [1]byte
	if err := c.query("get transmitter state", TransmitterAddress, request[:], response[:]); err != nil {
		return TransmitterState{}, err
	}
	return parseTransmitterState(response[0]), nil
}

// GetReceiverTelemetry queries receiver uptime and housekeeping values.
// Every query is attempted; fields of failed queries are left zero and
// their errors are joined.
func (c *Comm) GetReceiverTelemetry() (ReceiverTelemetry, error) {
	var telemetry ReceiverTelemetry
	err := c.collectReceiverTelemetry(&telemetry)
	return telemetry, c.track(err)
}

// GetTransmitterTelemetry queries transmitter uptime, state and power
// readings with the same partial result rules as GetReceiverTelemetry.
func (c *Comm) GetTransmitterTelemetry() (TransmitterTelemetry, error) {
	var telemetry TransmitterTelemetry
	err := c.collectTransmitterTelemetry(&telemetry)
	return telemetry, c.track(err)
}

// GetTelemetry queries both halves of the radio.
func (c *Comm) GetTelemetry() (CommTelemetry, error) {
	var telemetry CommTelemetry
	err := errors.Join(
		c.collectReceiverTelemetry(&telemetry.Receiver),
		c.collectTransmitterTelemetry(&telemetry.Transmitter),
	)
	return telemetry, c.track(err)
}

func (c *Comm) collectReceiverTelemetry(t *ReceiverTelemetry) error {
	var errs []error

	var uptime [uptimeSize]byte
	if err := c.query("receiver uptime", ReceiverAddress, []byte{RxGetUptime}, uptime[:]); err != nil {
		errs = append(errs, err)
	} else {
		t.Uptime = parseUptime(uptime[:])
	}

	var block [receiverTelemetrySize]byte
	if err := c.query("receiver telemetry", ReceiverAddress, []byte{RxGetTelemetry}, block[:]); err != nil {
		errs = append(errs, err)
	} else {
		t.NowDopplerOffset = binary.LittleEndian.Uint16(block[2:4])
		t.NowReceiverCurrentConsumption = binary.LittleEndian.Uint16(block[4:6])
		t.NowVoltage = binary.LittleEndian.Uint16(block[6:8])
		t.NowOscillatorTemperature = binary.LittleEndian.Uint16(block[8:10])
		t.NowAmplifierTemperature = binary.LittleEndian.Uint16(block[10:12])
		t.NowRSSI = binary.LittleEndian.Uint16(block[12:14])
	}

	c.mu.Lock()
	t.LastReceivedDoppler = c.lastDoppler
	t.LastReceivedRSSI = c.lastRSSI
	c.mu.Unlock()

	return errors.Join(errs...)
}

func (c *Comm) collectTransmitterTelemetry(t *TransmitterTelemetry) error {
	var errs []error

	var uptime [uptimeSize]byte
	if err := c.query("transmitter uptime", TransmitterAddress, []byte{TxGetUptime}, uptime[:]); err != nil {
		errs = append(errs, err)
	} else {
		t.Uptime = parseUptime(uptime[:])
	}

	if state, err := c.transmitterState(); err != nil {
		errs = append(errs, err)
	} else {
		t.State = state
	}

	var last [transmissionTelemetrySize]byte
	if err := c.query("last transmission telemetry", TransmitterAddress,
		[]byte{TxGetTelemetryLastFrame}, last[:]); err != nil {
		errs = append(errs, err)
	} else {
		t.LastTransmission = TransmissionTelemetry{
			ReflectedPower:       binary.LittleEndian.Uint16(last[0:2]),
			AmplifierTemperature: binary.LittleEndian.Uint16(last[2:4]),
			ForwardPower:         binary.LittleEndian.Uint16(last[4:6]),
			CurrentConsumption:   binary.LittleEndian.Uint16(last[6:8]),
		}
	}

	var now [transmissionTelemetrySize]byte
	if err := c.query("instant transmitter telemetry", TransmitterAddress,
		[]byte{TxGetTelemetryInstant}, now[:]); err != nil {
		errs = append(errs, err)
	} else {
		t.NowForwardPower = binary.LittleEndian.Uint16(now[4:6])
		t.NowCurrentConsumption = binary.LittleEndian.Uint16(now[6:8])
	}

	return errors.Join(errs...)
}
