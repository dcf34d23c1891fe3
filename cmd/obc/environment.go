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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/fs"
	"github.com/ZaparooProject/go-obc/internal/config"
	"github.com/ZaparooProject/go-obc/osal"
	"github.com/ZaparooProject/go-obc/power"
	"github.com/ZaparooProject/go-obc/tasks"
	"github.com/ZaparooProject/go-obc/transport/i2c"
	"github.com/ZaparooProject/go-obc/transport/uart"
)

// environment is the hardware the system runs on: a bus, storage, the
// deployment power lines and a clock.
type environment struct {
	bus     obc.Bus
	clock   osal.Clock
	fsys    fs.FileSystem
	power   tasks.PowerControl
	sim     *simulation
	busName string
	closers []io.Closer
}

func openEnvironment(ctx context.Context, cfg *config.Config, simulate bool) (*environment, error) {
	env := &environment{clock: osal.NewSystemClock()}

	var err error
	if simulate {
		env.sim = newSimulation(ctx, env.clock, cfg)
		env.bus = env.sim.bench
		env.busName = "simulated bench"
	} else {
		env.bus, env.busName, err = env.openBus(cfg.Bus)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	if env.fsys, err = openStorage(cfg.Storage.Root); err != nil {
		env.Close()
		return nil, err
	}

	if env.power, err = openPower(cfg.Power, simulate); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *environment) openBus(cfg config.BusConfig) (obc.Bus, string, error) {
	if cfg.Emulator != "" {
		bridge, err := uart.New(cfg.Emulator)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open emulator bridge: %w", err)
		}
		e.closers = append(e.closers, bridge)
		return bridge, bridge.String(), nil
	}

	primary, err := i2c.New(cfg.Primary)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open primary bus: %w", err)
	}
	e.closers = append(e.closers, primary)
	if cfg.Fallback == "" {
		return primary, primary.String(), nil
	}

	fallback, err := i2c.New(cfg.Fallback)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open fallback bus: %w", err)
	}
	e.closers = append(e.closers, fallback)
	name := primary.String() + "+" + fallback.String()
	return obc.NewFallbackBus(primary, fallback), name, nil
}

// openStorage returns the file system at root. Without a root the files
// live in memory and are lost on exit.
func openStorage(root string) (fs.FileSystem, error) {
	if root == "" {
		obc.Warnf("no storage root configured, telemetry is kept in memory")
		return fs.NewMemory(), nil
	}
	return fs.NewOS(root)
}

func openPower(cfg config.PowerConfig, simulate bool) (tasks.PowerControl, error) {
	if simulate || !cfg.Enabled() {
		if !simulate {
			obc.Warnf("no deployment GPIO lines configured, solar array power is simulated")
		}
		return loggedPower{}, nil
	}
	gpio, err := power.Open(cfg.Pins, cfg.BurnPulse)
	if err != nil {
		return nil, fmt.Errorf("failed to open deployment power lines: %w", err)
	}
	return gpio, nil
}

// Close releases the buses in reverse order of opening.
func (e *environment) Close() {
	if e.sim != nil {
		e.sim.Stop()
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	if err := errors.Join(errs...); err != nil {
		obc.Warnf("failed to close bus: %v", err)
	}
	e.closers = nil
}

// loggedPower stands in for the deployment power lines.
type loggedPower struct{}

func (loggedPower) SetThermalKnife(line tasks.PowerLine, on bool) error {
	obc.Infof("thermal knife %s on=%t", line, on)
	return nil
}

func (loggedPower) EnableBurnSwitch(line tasks.PowerLine) error {
	obc.Infof("burn switch %s pulsed", line)
	return nil
}
