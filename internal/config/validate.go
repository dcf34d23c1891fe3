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

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-obc/errcount"
)

// Validate checks the configuration without changing it. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}

	// bus
	if c.Bus.Primary == "" && c.Bus.Emulator == "" {
		errs = append(errs, errors.New("bus: primary or emulator endpoint required"))
	}
	if c.Bus.Emulator != "" && c.Bus.Fallback != "" {
		errs = append(errs, errors.New("bus: fallback is not supported with the emulator bridge"))
	}

	// comm
	positive("comm.poll_interval", c.Comm.PollInterval)
	positive("comm.stall_window", c.Comm.StallWindow)
	positive("comm.recovery_backoff", c.Comm.RecoveryBackoff)
	if c.Comm.TraceDepth < 0 {
		errs = append(errs, fmt.Errorf("comm.trace_depth must not be negative, got %d", c.Comm.TraceDepth))
	}
	if c.Comm.RecoveryRounds <= 0 {
		errs = append(errs, fmt.Errorf("comm.recovery_rounds must be positive, got %d", c.Comm.RecoveryRounds))
	}

	// mission
	m := c.Mission
	positive("mission.tick", m.Tick)
	positive("mission.time_persist_interval", m.TimePersistInterval)
	positive("mission.antenna_retry_delay", m.AntennaRetryDelay)
	positive("mission.beacon_interval", m.BeaconInterval)
	if m.TimeFile == "" {
		errs = append(errs, errors.New("mission.time_file is required"))
	}
	if m.AntennaSilentPeriod < 0 {
		errs = append(errs, fmt.Errorf("mission.antenna_silent_period must not be negative, got %v", m.AntennaSilentPeriod))
	}
	if m.AntennaBurnTime < time.Second || m.AntennaBurnTime > 255*time.Second {
		errs = append(errs, fmt.Errorf("mission.antenna_burn_time must be within 1s..255s, got %v", m.AntennaBurnTime))
	}
	if m.AntennaAddress > 0x7F {
		errs = append(errs, fmt.Errorf("mission.antenna_address 0x%02X is not a 7-bit address", m.AntennaAddress))
	}
	if m.SolarArrayEarliest < 0 || m.SolarArrayAutomatic < m.SolarArrayEarliest {
		errs = append(errs, fmt.Errorf(
			"mission: solar array window %v..%v is invalid", m.SolarArrayEarliest, m.SolarArrayAutomatic))
	}

	// telemetry
	t := c.Telemetry
	positive("telemetry.delay", t.Delay)
	positive("telemetry.collect_interval", t.CollectInterval)
	if t.CurrentFile == "" || t.PreviousFile == "" {
		errs = append(errs, errors.New("telemetry: current_file and previous_file are required"))
	} else if t.CurrentFile == t.PreviousFile {
		errs = append(errs, fmt.Errorf("telemetry: current and previous file are both %q", t.CurrentFile))
	}
	if t.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.max_file_size must be positive, got %d", t.MaxFileSize))
	}

	// error counters
	for name, cfg := range c.ErrorCounters {
		if _, err := errcount.ParseDevice(name); err != nil {
			errs = append(errs, fmt.Errorf("error_counters: %w", err))
			continue
		}
		if cfg.Limit == 0 || cfg.Increment == 0 {
			errs = append(errs, fmt.Errorf("error_counters.%s: limit and increment must be positive", name))
		}
	}

	// power
	if c.Power.Enabled() {
		p := c.Power.Pins
		if p.MainKnife == "" || p.RedundantKnife == "" || p.MainBurn == "" || p.RedundantBurn == "" {
			errs = append(errs, errors.New("power.pins: all four lines must be named"))
		}
		positive("power.burn_pulse", c.Power.BurnPulse)
	}

	return errors.Join(errs...)
}
