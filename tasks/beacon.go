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
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/mission"
	"github.com/ZaparooProject/go-obc/state"
)

// Beacon defaults.
const (
	// BeaconMarker identifies a telemetry beacon frame.
	BeaconMarker byte = 0xCD
	// DefaultBeaconInterval is the beacon update period.
	DefaultBeaconInterval = 30 * time.Second
	// TelemetryLockTimeout bounds waits for the telemetry buffer.
	TelemetryLockTimeout = 5 * time.Second
)

// BeaconSetter installs the radio beacon.
type BeaconSetter interface {
	SetBeacon(beacon obc.Beacon) (obc.BeaconResult, error)
}

// BeaconTask refreshes the radio beacon with the latest telemetry once the
// antennas are out.
type BeaconTask struct {
	radio       BeaconSetter
	interval    time.Duration
	lockTimeout time.Duration
	last        time.Duration
}

// NewBeaconTask creates the beacon task.
func NewBeaconTask(radio BeaconSetter, interval time.Duration) *BeaconTask {
	return &BeaconTask{
		radio:       radio,
		interval:    interval,
		lockTimeout: TelemetryLockTimeout,
	}
}

// BuildAction returns the beacon update action.
func (t *BeaconTask) BuildAction() mission.ActionDescriptor[state.SystemState] {
	return mission.ActionDescriptor[state.SystemState]{
		Name:      "beacon update",
		Condition: t.due,
		Action:    t.update,
	}
}

func (t *BeaconTask) due(s *state.SystemState) bool {
	if !s.Antenna.Deployed {
		return false
	}
	delta := s.Time - t.last
	return delta < 0 || delta >= t.interval
}

func (t *BeaconTask) update(s *state.SystemState) {
	var payload [1 + state.TelemetrySize]byte
	payload[0] = BeaconMarker
	err := s.Telemetry.Read(t.lockTimeout, func(data []byte, _ uint64) {
		copy(payload[1:], data)
	})
	if err != nil {
		obc.Warnf("beacon not updated: %v", err)
		return
	}

	result, err := t.radio.SetBeacon(obc.NewBeacon(t.interval, payload[:]))
	switch result {
	case obc.BeaconSet:
		t.last = s.Time
	case obc.BeaconIndeterminate:
		obc.Warnf("beacon rejected: transmitter queue busy")
	case obc.BeaconFailed:
		obc.Errorf("failed to set beacon: %v", err)
	}
}
