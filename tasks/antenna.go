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

// Antenna deployment defaults.
const (
	DefaultAntennaSilentPeriod = 30 * time.Minute
	DefaultAntennaRetryDelay   = 5 * time.Minute
)

// AntennaDriver deploys the antennas.
type AntennaDriver interface {
	Deploy() error
	Deployed() (bool, error)
}

// AntennaConfig controls the deployment schedule.
type AntennaConfig struct {
	// SilentPeriod is the mission time before which deployment is forbidden.
	SilentPeriod time.Duration
	// RetryDelay is the wait after a failed deployment attempt.
	RetryDelay time.Duration
}

// DefaultAntennaConfig returns the launch provider's required silent period.
func DefaultAntennaConfig() AntennaConfig {
	return AntennaConfig{
		SilentPeriod: DefaultAntennaSilentPeriod,
		RetryDelay:   DefaultAntennaRetryDelay,
	}
}

// AntennaTask deploys the antennas once the silent period has passed.
type AntennaTask struct {
	driver      AntennaDriver
	config      AntennaConfig
	nextAttempt time.Duration
}

// NewAntennaTask creates the deployment task.
func NewAntennaTask(driver AntennaDriver, config AntennaConfig) *AntennaTask {
	return &AntennaTask{driver: driver, config: config}
}

// BuildAction returns the deployment action.
func (t *AntennaTask) BuildAction() mission.ActionDescriptor[state.SystemState] {
	return mission.ActionDescriptor[state.SystemState]{
		Name: "deploy antenna",
		Condition: func(s *state.SystemState) bool {
			return s.Time > t.config.SilentPeriod &&
				!s.Antenna.Deployed &&
				s.Time >= t.nextAttempt
		},
		Action: func(s *state.SystemState) {
			if err := t.driver.Deploy(); err != nil {
				t.nextAttempt = s.Time + t.config.RetryDelay
				obc.Errorf("antenna deployment failed, retrying at %v: %v", t.nextAttempt, err)
				return
			}
			s.Antenna.Deployed = true
			obc.Infof("antenna deployed at mission time %v", s.Time)
		},
	}
}

// BuildUpdate returns the update reading the deployment switches. A read
// failure is a warning; a deployed antenna stays deployed.
func (t *AntennaTask) BuildUpdate() mission.UpdateDescriptor[state.SystemState] {
	return mission.UpdateDescriptor[state.SystemState]{
		Name: "antenna status",
		Update: func(s *state.SystemState) mission.UpdateResult {
			if s.Antenna.Deployed {
				return mission.UpdateOK
			}
			deployed, err := t.driver.Deployed()
			if err != nil {
				obc.Warnf("antenna status unavailable: %v", err)
				return mission.UpdateWarning
			}
			s.Antenna.Deployed = deployed
			return mission.UpdateOK
		},
	}
}
