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

// Package errcount tracks per-subsystem fault severity. Each hardware-facing
// operation reports its outcome once: a failure raises the subsystem's
// counter by a large step, a success lowers it by a small one, and the value
// saturates in [0, Limit]. Escalation (restarts, safe mode) is left to the
// limit handler installed by the mission layer.
package errcount

import (
	"fmt"

	"github.com/ZaparooProject/go-obc/internal/syncutil"
)

// Device identifies a subsystem with its own counter.
type Device uint8

const (
	// DeviceComm is the transmitter/receiver pair.
	DeviceComm Device = iota
	// DeviceAntenna is the antenna deployment controller.
	DeviceAntenna
	// DeviceSolarArray is the solar array deployment power path.
	DeviceSolarArray
	// DeviceStorage is the persistent file system.
	DeviceStorage

	// DeviceCount is the number of tracked subsystems.
	DeviceCount
)

var deviceNames = [DeviceCount]string{
	DeviceComm:       "comm",
	DeviceAntenna:    "antenna",
	DeviceSolarArray: "solar_array",
	DeviceStorage:    "storage",
}

func (d Device) String() string {
	if d < DeviceCount {
		return deviceNames[d]
	}
	return fmt.Sprintf("device(%d)", uint8(d))
}

// ParseDevice resolves a device from its String form.
func ParseDevice(name string) (Device, error) {
	for i, n := range deviceNames {
		if n == name {
			return Device(i), nil
		}
	}
	return 0, fmt.Errorf("unknown error counter device %q", name)
}

// Sink receives operation outcomes for a subsystem.
type Sink interface {
	Increment(d Device)
	Decrement(d Device)
}

// Config holds the counting policy of one subsystem.
type Config struct {
	Limit     uint8 `yaml:"limit"`
	Increment uint8 `yaml:"increment"`
	Decrement uint8 `yaml:"decrement"`
}

// DefaultConfig returns the policy used when none is configured.
func DefaultConfig() Config {
	return Config{
		Limit:     15,
		Increment: 5,
		Decrement: 2,
	}
}

// LimitHandler is called when a counter reaches its limit. It runs on the
// goroutine that reported the failure, after the counter lock is released.
type LimitHandler func(d Device, value uint8)

// Option configures a Counting instance.
type Option func(*Counting)

// WithConfig overrides the policy for one device.
func WithConfig(d Device, cfg Config) Option {
	return func(c *Counting) {
		if d < DeviceCount {
			c.configs[d] = cfg
		}
	}
}

// WithLimitHandler installs the escalation callback.
func WithLimitHandler(handler LimitHandler) Option {
	return func(c *Counting) {
		c.onLimit = handler
	}
}

// Counting is the in-memory fault tracker for all subsystems.
type Counting struct {
	onLimit LimitHandler
	configs [DeviceCount]Config
	values  [DeviceCount]uint8
	mu      syncutil.Mutex
}

// New creates a tracker with all counters at zero.
func New(opts ...Option) *Counting {
	c := &Counting{}
	for i := range c.configs {
		c.configs[i] = DefaultConfig()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Increment records a failure. The limit handler fires only on the
// transition into the limit, so a subsystem that keeps failing does not
// trigger a storm of escalations.
func (c *Counting) Increment(d Device) {
	if d >= DeviceCount {
		return
	}

	c.mu.Lock()
	cfg := c.configs[d]
	before := c.values[d]
	after := uint16(before) + uint16(cfg.Increment)
	if after > uint16(cfg.Limit) {
		after = uint16(cfg.Limit)
	}
	c.values[d] = uint8(after)
	handler := c.onLimit
	c.mu.Unlock()

	if handler != nil && before < cfg.Limit && uint8(after) >= cfg.Limit {
		handler(d, uint8(after))
	}
}

// Decrement records a success.
func (c *Counting) Decrement(d Device) {
	if d >= DeviceCount {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.configs[d].Decrement
	if c.values[d] < step {
		c.values[d] = 0
		return
	}
	c.values[d] -= step
}

// Current returns the counter value of a device.
func (c *Counting) Current(d Device) uint8 {
	if d >= DeviceCount {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[d]
}

// Snapshot returns all counter values.
func (c *Counting) Snapshot() [DeviceCount]uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values
}

// Config returns the policy of a device.
func (c *Counting) Config(d Device) Config {
	if d >= DeviceCount {
		return Config{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configs[d]
}

// SetConfig replaces the policy of a device. A current value above the new
// limit is clamped.
func (c *Counting) SetConfig(d Device, cfg Config) error {
	if d >= DeviceCount {
		return fmt.Errorf("unknown error counter device %d", d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[d] = cfg
	if c.values[d] > cfg.Limit {
		c.values[d] = cfg.Limit
	}
	return nil
}

// Counter returns a handle bound to one device.
func (c *Counting) Counter(d Device) Counter {
	return Counter{sink: c, device: d}
}

// Counter reports outcomes of a single subsystem.
type Counter struct {
	sink   Sink
	device Device
}

// NewCounter binds an arbitrary sink to a device.
func NewCounter(sink Sink, d Device) Counter {
	return Counter{sink: sink, device: d}
}

// Device returns the bound subsystem.
func (c Counter) Device() Device {
	return c.device
}

// Failure raises the counter.
func (c Counter) Failure() {
	if c.sink != nil {
		c.sink.Increment(c.device)
	}
}

// Success lowers the counter.
func (c Counter) Success() {
	if c.sink != nil {
		c.sink.Decrement(c.device)
	}
}

// Record reports a single outcome.
func (c Counter) Record(ok bool) {
	if ok {
		c.Success()
	} else {
		c.Failure()
	}
}

// Current returns the bound device's value when the sink can report it.
func (c Counter) Current() uint8 {
	if r, ok := c.sink.(interface{ Current(Device) uint8 }); ok {
		return r.Current(c.device)
	}
	return 0
}
