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

// Package antenna drives the antenna deployment controller: arming, the
// controller's automatic deployment sequence and the deployment switches.
package antenna

import (
	"encoding/binary"
	"fmt"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/internal/syncutil"
)

// DefaultAddress is the controller bus address.
const DefaultAddress byte = 0x31

// Controller opcodes.
const (
	OpReset      byte = 0xAA
	OpArm        byte = 0xAD
	OpDisarm     byte = 0xAC
	OpAutoDeploy byte = 0xA5
	OpStatus     byte = 0xC3
)

// DefaultBurnTime is the per-antenna burn limit of the automatic sequence.
const DefaultBurnTime = 10 * time.Second

// Status is the controller's deployment status word.
type Status uint16

// Status bits.
const (
	StatusArmed Status = 1 << 0
	// StatusActive is set while the automatic sequence runs.
	StatusActive Status = 1 << 4
	// Antenna n is deployed when its bit is clear; the switches open on
	// release.
	StatusNotDeployed1 Status = 1 << 15
	StatusNotDeployed2 Status = 1 << 11
	StatusNotDeployed3 Status = 1 << 7
	StatusNotDeployed4 Status = 1 << 3

	statusNotDeployedMask = StatusNotDeployed1 | StatusNotDeployed2 | StatusNotDeployed3 | StatusNotDeployed4
)

// Armed reports whether the controller accepts deployment commands.
func (s Status) Armed() bool { return s&StatusArmed != 0 }

// Active reports whether a deployment is in progress.
func (s Status) Active() bool { return s&StatusActive != 0 }

// AllDeployed reports whether every antenna is released.
func (s Status) AllDeployed() bool { return s&statusNotDeployedMask == 0 }

// Driver talks to the deployment controller. It implements
// tasks.AntennaDriver. Every operation reports to the antenna counter.
type Driver struct {
	bus      obc.Bus
	counter  errcount.Counter
	mu       syncutil.Mutex
	burnTime time.Duration
	address  byte
}

// Option configures a Driver.
type Option func(*Driver)

// WithAddress selects the controller address.
func WithAddress(address byte) Option {
	return func(d *Driver) { d.address = address }
}

// WithBurnTime sets the automatic sequence burn limit, in whole seconds.
func WithBurnTime(burn time.Duration) Option {
	return func(d *Driver) { d.burnTime = burn }
}

// New creates a driver on bus.
func New(bus obc.Bus, counter errcount.Counter, opts ...Option) *Driver {
	d := &Driver{
		bus:      bus,
		counter:  counter,
		address:  DefaultAddress,
		burnTime: DefaultBurnTime,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset restarts the controller.
func (d *Driver) Reset() error {
	return d.command("reset", OpReset)
}

// Arm enables deployment.
func (d *Driver) Arm() error {
	return d.command("arm", OpArm)
}

// Disarm disables deployment.
func (d *Driver) Disarm() error {
	return d.command("disarm", OpDisarm)
}

// Deploy arms the controller and starts its automatic deployment sequence.
func (d *Driver) Deploy() error {
	if err := d.Arm(); err != nil {
		return err
	}
	seconds := d.burnTime / time.Second
	if seconds < 1 || seconds > 0xFF {
		return fmt.Errorf("antenna burn time %v out of range", d.burnTime)
	}
	request := [2]byte{OpAutoDeploy, byte(seconds)}
	d.mu.Lock()
	result := d.bus.Write(d.address, request[:])
	d.mu.Unlock()
	return d.record("auto deploy", result)
}

// Status reads the controller status word.
func (d *Driver) Status() (Status, error) {
	var response [2]byte
	request := [1]byte{OpStatus}
	d.mu.Lock()
	result := d.bus.WriteRead(d.address, request[:], response[:])
	d.mu.Unlock()
	if err := d.record("status", result); err != nil {
		return 0, err
	}
	return Status(binary.LittleEndian.Uint16(response[:])), nil
}

// Deployed implements tasks.AntennaDriver.
func (d *Driver) Deployed() (bool, error) {
	status, err := d.Status()
	if err != nil {
		return false, err
	}
	return status.AllDeployed(), nil
}

func (d *Driver) command(op string, opcode byte) error {
	d.mu.Lock()
	result := obc.WriteCommand(d.bus, d.address, opcode)
	d.mu.Unlock()
	return d.record(op, result)
}

func (d *Driver) record(op string, result obc.BusResult) error {
	d.counter.Record(result.OK())
	if !result.OK() {
		return obc.NewBusError("antenna "+op, d.address, result)
	}
	return nil
}
