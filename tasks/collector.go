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

package tasks

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/osal"
	"github.com/ZaparooProject/go-obc/state"
)

// DefaultCollectInterval is the telemetry sampling period.
const DefaultCollectInterval = 10 * time.Second

// Snapshot layout. All multi-byte values are little endian; bytes past
// snapshotUsed are zero.
const (
	snapshotTimeOffset        = 0
	snapshotCountersOffset    = 8
	snapshotStatusOffset      = snapshotCountersOffset + int(errcount.DeviceCount)
	snapshotReceiverOffset    = snapshotStatusOffset + 1
	snapshotTransmitterOffset = snapshotReceiverOffset + 20
	snapshotUsed              = snapshotTransmitterOffset + 17
)

// Snapshot status bits.
const (
	SnapshotCommOK byte = 1 << iota
)

// CommTelemetrySource provides radio housekeeping.
type CommTelemetrySource interface {
	GetTelemetry() (obc.CommTelemetry, error)
}

// CounterSnapshotter provides the current error counter values.
type CounterSnapshotter interface {
	Snapshot() [errcount.DeviceCount]uint8
}

// TelemetryCollector samples the subsystems and serializes the result into
// the shared telemetry buffer.
type TelemetryCollector struct {
	comm        CommTelemetrySource
	counters    CounterSnapshotter
	time        *MissionTime
	buffer      *state.TelemetryBuffer
	interval    time.Duration
	lockTimeout time.Duration
}

// NewTelemetryCollector creates a collector writing into buffer.
func NewTelemetryCollector(
	comm CommTelemetrySource,
	counters CounterSnapshotter,
	missionTime *MissionTime,
	buffer *state.TelemetryBuffer,
	interval time.Duration,
) *TelemetryCollector {
	return &TelemetryCollector{
		comm:        comm,
		counters:    counters,
		time:        missionTime,
		buffer:      buffer,
		interval:    interval,
		lockTimeout: TelemetryLockTimeout,
	}
}

// Start creates the collector task on sched and lets it run.
func (c *TelemetryCollector) Start(sched *osal.Scheduler) (*osal.Task, error) {
	if c.interval <= 0 {
		return nil, fmt.Errorf("collect interval must be positive, got %v", c.interval)
	}
	task, err := sched.CreateTask("telemetry", c.run)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry task: %w", err)
	}
	task.Resume()
	return task, nil
}

func (c *TelemetryCollector) run(ctx context.Context, task *osal.Task) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := task.Checkpoint(ctx); err != nil {
			return
		}
		if err := c.Collect(); err != nil {
			obc.Warnf("telemetry collection: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Collect takes one sample and stores it. Partial radio telemetry is
// stored with the status bit cleared.
func (c *TelemetryCollector) Collect() error {
	var snapshot [state.TelemetrySize]byte
	commTelemetry, commErr := c.comm.GetTelemetry()
	encodeSnapshot(snapshot[:], c.time.Now(), c.counters.Snapshot(), commTelemetry, commErr == nil)

	if err := c.buffer.Store(c.lockTimeout, func(data []byte) {
		copy(data, snapshot[:])
	}); err != nil {
		return err
	}
	if commErr != nil {
		return fmt.Errorf("radio telemetry incomplete: %w", commErr)
	}
	return nil
}

func encodeSnapshot(
	out []byte,
	missionTime time.Duration,
	counters [errcount.DeviceCount]uint8,
	comm obc.CommTelemetry,
	commOK bool,
) {
	le := binary.LittleEndian
	le.PutUint64(out[snapshotTimeOffset:], uint64(missionTime.Milliseconds()))
	copy(out[snapshotCountersOffset:], counters[:])
	if commOK {
		out[snapshotStatusOffset] |= SnapshotCommOK
	}

	rx := comm.Receiver
	b := out[snapshotReceiverOffset:]
	le.PutUint32(b[0:], uint32(rx.Uptime/time.Second))
	le.PutUint16(b[4:], rx.LastReceivedDoppler)
	le.PutUint16(b[6:], rx.LastReceivedRSSI)
	le.PutUint16(b[8:], rx.NowDopplerOffset)
	le.PutUint16(b[10:], rx.NowReceiverCurrentConsumption)
	le.PutUint16(b[12:], rx.NowVoltage)
	le.PutUint16(b[14:], rx.NowOscillatorTemperature)
	le.PutUint16(b[16:], rx.NowAmplifierTemperature)
	le.PutUint16(b[18:], rx.NowRSSI)

	tx := comm.Transmitter
	b = out[snapshotTransmitterOffset:]
	le.PutUint32(b[0:], uint32(tx.Uptime/time.Second))
	b[4] = encodeTransmitterState(tx.State)
	le.PutUint16(b[5:], tx.LastTransmission.ReflectedPower)
	le.PutUint16(b[7:], tx.LastTransmission.AmplifierTemperature)
	le.PutUint16(b[9:], tx.LastTransmission.ForwardPower)
	le.PutUint16(b[11:], tx.LastTransmission.CurrentConsumption)
	le.PutUint16(b[13:], tx.NowForwardPower)
	le.PutUint16(b[15:], tx.NowCurrentConsumption)
}

func encodeTransmitterState(s obc.TransmitterState) byte {
	v := byte(s.StateWhenIdle) & 0x01
	if s.BeaconActive {
		v |= 0x02
	}
	switch s.Bitrate {
	case obc.Bitrate2400:
		v |= 1 << 2
	case obc.Bitrate4800:
		v |= 2 << 2
	case obc.Bitrate9600:
		v |= 3 << 2
	}
	return v
}
