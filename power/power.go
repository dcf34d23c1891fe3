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

// Package power drives the solar array deployment power lines over GPIO:
// one thermal knife enable and one burn switch per redundant line.
package power

import (
	"errors"
	"fmt"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/tasks"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultBurnPulse is how long a burn switch is held closed.
const DefaultBurnPulse = 500 * time.Millisecond

// Pins names the GPIO lines as known to the periph registry.
type Pins struct {
	MainKnife      string `yaml:"main_knife"`
	RedundantKnife string `yaml:"redundant_knife"`
	MainBurn       string `yaml:"main_burn"`
	RedundantBurn  string `yaml:"redundant_burn"`
}

// Lines holds the output pins. Index by tasks.PowerLine.
type Lines struct {
	Knives [2]gpio.PinOut
	Burns  [2]gpio.PinOut
}

// GPIO implements tasks.PowerControl.
type GPIO struct {
	sleep func(time.Duration)
	lines Lines
	pulse time.Duration
}

// New drives the given pins. A non-positive pulse selects DefaultBurnPulse.
func New(lines Lines, pulse time.Duration) (*GPIO, error) {
	for i := range lines.Knives {
		if lines.Knives[i] == nil || lines.Burns[i] == nil {
			return nil, fmt.Errorf("power line %s: pin not set", tasks.PowerLine(i))
		}
	}
	if pulse <= 0 {
		pulse = DefaultBurnPulse
	}
	g := &GPIO{lines: lines, pulse: pulse, sleep: time.Sleep}
	if err := g.Safe(); err != nil {
		return nil, err
	}
	return g, nil
}

// Open initializes the host drivers and looks the pins up by name.
func Open(pins Pins, pulse time.Duration) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	lines, err := lookup(pins)
	if err != nil {
		return nil, err
	}
	return New(lines, pulse)
}

func lookup(pins Pins) (Lines, error) {
	var lines Lines
	var err error
	lookups := []struct {
		dst  *gpio.PinOut
		name string
	}{
		{&lines.Knives[tasks.PowerLineMain], pins.MainKnife},
		{&lines.Knives[tasks.PowerLineRedundant], pins.RedundantKnife},
		{&lines.Burns[tasks.PowerLineMain], pins.MainBurn},
		{&lines.Burns[tasks.PowerLineRedundant], pins.RedundantBurn},
	}
	for _, l := range lookups {
		pin := gpioreg.ByName(l.name)
		if pin == nil {
			err = errors.Join(err, fmt.Errorf("gpio pin %q not found", l.name))
			continue
		}
		*l.dst = pin
	}
	return lines, err
}

// SetThermalKnife implements tasks.PowerControl.
func (g *GPIO) SetThermalKnife(line tasks.PowerLine, on bool) error {
	pin, err := g.pin(g.lines.Knives, line)
	if err != nil {
		return err
	}
	if err := pin.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("%s thermal knife: %w", line, err)
	}
	obc.Debugf("%s thermal knife %t", line, on)
	return nil
}

// EnableBurnSwitch implements tasks.PowerControl. The switch is pulsed and
// always released, even when closing it failed.
func (g *GPIO) EnableBurnSwitch(line tasks.PowerLine) error {
	pin, err := g.pin(g.lines.Burns, line)
	if err != nil {
		return err
	}
	closeErr := pin.Out(gpio.High)
	if closeErr == nil {
		g.sleep(g.pulse)
	}
	releaseErr := pin.Out(gpio.Low)
	if err := errors.Join(closeErr, releaseErr); err != nil {
		return fmt.Errorf("%s burn switch: %w", line, err)
	}
	return nil
}

// Safe drives every line low.
func (g *GPIO) Safe() error {
	var err error
	for i := range g.lines.Knives {
		err = errors.Join(err, g.lines.Knives[i].Out(gpio.Low), g.lines.Burns[i].Out(gpio.Low))
	}
	if err != nil {
		return fmt.Errorf("failed to drive power lines low: %w", err)
	}
	return nil
}

func (*GPIO) pin(pins [2]gpio.PinOut, line tasks.PowerLine) (gpio.PinOut, error) {
	if int(line) >= len(pins) {
		return nil, fmt.Errorf("unknown power line %d", line)
	}
	return pins[line], nil
}
