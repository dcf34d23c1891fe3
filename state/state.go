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

// Package state holds the shared mission state driven by the mission loop.
package state

import (
	"errors"
	"time"

	"github.com/ZaparooProject/go-obc/osal"
)

// TelemetrySize is the size of one serialized telemetry snapshot.
const TelemetrySize = 230

// ErrTelemetryUnavailable is returned when the telemetry lock could not be
// taken in time. Callers treat it as "skip this tick".
var ErrTelemetryUnavailable = errors.New("telemetry buffer unavailable")

// AntennaState is the antenna deployment status.
type AntennaState struct {
	Deployed bool
}

// SolarArrayState is the solar array deployment status.
type SolarArrayState struct {
	Deployed bool
}

// SystemState is the object every mission task reads and updates. All
// fields except Telemetry are written only by the mission loop goroutine.
type SystemState struct {
	Telemetry  *TelemetryBuffer
	Time       time.Duration
	Antenna    AntennaState
	SolarArray SolarArrayState
}

// New returns a state at mission start with an empty telemetry buffer.
func New() *SystemState {
	return &SystemState{Telemetry: NewTelemetryBuffer()}
}

// Empty returns a state without a telemetry buffer. Tasks reading
// telemetry treat it as unavailable.
func Empty() SystemState {
	return SystemState{}
}

// TelemetryBuffer is the serialized telemetry shared between the producer
// task and its consumers. Access is bounded in time.
type TelemetryBuffer struct {
	lock     *osal.Lock
	data     [TelemetrySize]byte
	revision uint64
}

// NewTelemetryBuffer creates a zeroed buffer.
func NewTelemetryBuffer() *TelemetryBuffer {
	return &TelemetryBuffer{lock: osal.NewLock()}
}

// Store lets fn fill the buffer while holding the lock.
func (b *TelemetryBuffer) Store(timeout time.Duration, fn func(data []byte)) error {
	if b == nil || !b.lock.TryLockFor(timeout) {
		return ErrTelemetryUnavailable
	}
	defer b.lock.Unlock()
	fn(b.data[:])
	b.revision++
	return nil
}

// Read lets fn inspect the buffer while holding the lock. fn must not
// retain data.
func (b *TelemetryBuffer) Read(timeout time.Duration, fn func(data []byte, revision uint64)) error {
	if b == nil || !b.lock.TryLockFor(timeout) {
		return ErrTelemetryUnavailable
	}
	defer b.lock.Unlock()
	fn(b.data[:], b.revision)
	return nil
}

// Snapshot copies the buffer out.
func (b *TelemetryBuffer) Snapshot(timeout time.Duration) ([TelemetrySize]byte, error) {
	var out [TelemetrySize]byte
	err := b.Read(timeout, func(data []byte, _ uint64) {
		copy(out[:], data)
	})
	return out, err
}
