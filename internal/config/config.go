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

// Package config loads the mission configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/antenna"
	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/power"
	"github.com/ZaparooProject/go-obc/tasks"
)

// DefaultSecurityCode is the uplink security code used when none is
// configured.
const DefaultSecurityCode uint32 = 0xBBBBBBBB

type Config struct {
	ErrorCounters map[string]errcount.Config `yaml:"error_counters"`
	Bus           BusConfig                  `yaml:"bus"`
	Storage       StorageConfig              `yaml:"storage"`
	Telemetry     TelemetryConfig            `yaml:"telemetry"`
	Power         PowerConfig                `yaml:"power"`
	Mission       MissionConfig              `yaml:"mission"`
	Comm          CommConfig                 `yaml:"comm"`
	Uplink        UplinkConfig               `yaml:"uplink"`
}

// ---- BUS ----

// BusConfig names the bus endpoints. An emulator port replaces the I2C
// buses with the serial bridge.
type BusConfig struct {
	Primary  string `yaml:"primary"`
	Fallback string `yaml:"fallback"`
	Emulator string `yaml:"emulator"`
}

// ---- COMM ----

type CommConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	StallWindow     time.Duration `yaml:"stall_window"`
	TraceDepth      int           `yaml:"trace_depth"`
	RecoveryBackoff time.Duration `yaml:"recovery_backoff"`
	RecoveryRounds  int           `yaml:"recovery_rounds"`
}

// ---- MISSION ----

type MissionConfig struct {
	TimeFile            string        `yaml:"time_file"`
	Tick                time.Duration `yaml:"tick"`
	TimePersistInterval time.Duration `yaml:"time_persist_interval"`
	AntennaSilentPeriod time.Duration `yaml:"antenna_silent_period"`
	AntennaRetryDelay   time.Duration `yaml:"antenna_retry_delay"`
	AntennaBurnTime     time.Duration `yaml:"antenna_burn_time"`
	SolarArrayEarliest  time.Duration `yaml:"solar_array_earliest"`
	SolarArrayAutomatic time.Duration `yaml:"solar_array_automatic"`
	BeaconInterval      time.Duration `yaml:"beacon_interval"`
	AntennaAddress      uint8         `yaml:"antenna_address"`
}

// ---- TELEMETRY ----

type TelemetryConfig struct {
	CurrentFile     string        `yaml:"current_file"`
	PreviousFile    string        `yaml:"previous_file"`
	MaxFileSize     int64         `yaml:"max_file_size"`
	Delay           time.Duration `yaml:"delay"`
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// ---- STORAGE / UPLINK / POWER ----

// StorageConfig selects the file system root. An empty root keeps files
// in memory.
type StorageConfig struct {
	Root string `yaml:"root"`
}

type UplinkConfig struct {
	SecurityCode uint32 `yaml:"security_code"`
}

// PowerConfig names the deployment GPIO lines. Without pins the solar
// array power path is simulated.
type PowerConfig struct {
	Pins      power.Pins    `yaml:"pins"`
	BurnPulse time.Duration `yaml:"burn_pulse"`
}

// Enabled reports whether any GPIO line is configured.
func (p PowerConfig) Enabled() bool {
	return p.Pins != power.Pins{}
}

// Default returns the flight defaults.
func Default() *Config {
	telemetry := tasks.DefaultTelemetryConfig()
	return &Config{
		Bus: BusConfig{Primary: "/dev/i2c-1"},
		Comm: CommConfig{
			PollInterval:    obc.DefaultPollInterval,
			StallWindow:     obc.DefaultStallWindow,
			TraceDepth:      obc.DefaultTraceDepth,
			RecoveryBackoff: obc.RecoveryBackoff,
			RecoveryRounds:  obc.RecoveryAttempts,
		},
		Mission: MissionConfig{
			Tick:                tasks.DefaultMissionTick,
			TimeFile:            tasks.DefaultMissionTimeFile,
			TimePersistInterval: tasks.DefaultTimePersistInterval,
			AntennaSilentPeriod: tasks.DefaultAntennaSilentPeriod,
			AntennaRetryDelay:   tasks.DefaultAntennaRetryDelay,
			AntennaBurnTime:     antenna.DefaultBurnTime,
			AntennaAddress:      antenna.DefaultAddress,
			SolarArrayEarliest:  tasks.DefaultSolarArrayEarliestDeployment,
			SolarArrayAutomatic: tasks.DefaultSolarArrayAutoDeployment,
			BeaconInterval:      tasks.DefaultBeaconInterval,
		},
		Telemetry: TelemetryConfig{
			CurrentFile:     telemetry.CurrentFile,
			PreviousFile:    telemetry.PreviousFile,
			MaxFileSize:     telemetry.MaxFileSize,
			Delay:           telemetry.Delay,
			CollectInterval: tasks.DefaultCollectInterval,
		},
		Uplink: UplinkConfig{SecurityCode: DefaultSecurityCode},
		Power:  PowerConfig{BurnPulse: power.DefaultBurnPulse},
	}
}

// Load reads path over the defaults and validates the result. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CommOptions returns the driver configuration.
func (c *Config) CommOptions() *obc.Config {
	return &obc.Config{
		PollInterval: c.Comm.PollInterval,
		StallWindow:  c.Comm.StallWindow,
		TraceDepth:   c.Comm.TraceDepth,
	}
}

// TelemetryTask returns the archive configuration.
func (c *Config) TelemetryTask() tasks.TelemetryConfig {
	return tasks.TelemetryConfig{
		CurrentFile:  c.Telemetry.CurrentFile,
		PreviousFile: c.Telemetry.PreviousFile,
		MaxFileSize:  c.Telemetry.MaxFileSize,
		Delay:        c.Telemetry.Delay,
	}
}

// Antenna returns the antenna task configuration.
func (c *Config) Antenna() tasks.AntennaConfig {
	return tasks.AntennaConfig{
		SilentPeriod: c.Mission.AntennaSilentPeriod,
		RetryDelay:   c.Mission.AntennaRetryDelay,
	}
}

// SolarArray returns the solar array schedule.
func (c *Config) SolarArray() tasks.SolarArrayConfig {
	return tasks.SolarArrayConfig{
		EarliestDeployment: c.Mission.SolarArrayEarliest,
		AutoDeployment:     c.Mission.SolarArrayAutomatic,
	}
}

// CounterOptions returns the configured error counter limits.
func (c *Config) CounterOptions() ([]errcount.Option, error) {
	opts := make([]errcount.Option, 0, len(c.ErrorCounters))
	for name, cfg := range c.ErrorCounters {
		d, err := errcount.ParseDevice(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, errcount.WithConfig(d, cfg))
	}
	return opts, nil
}
