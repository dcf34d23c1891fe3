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

package testing

import (
	"encoding/binary"
	"sync"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/antenna"
	"github.com/ZaparooProject/go-obc/osal"
)

// VirtualAntenna simulates the antenna deployment controller. Antennas
// release once an armed auto deployment has burned for DeployAfter.
type VirtualAntenna struct {
	clock       osal.Clock
	burnStarted time.Duration
	deployAfter time.Duration
	mu          sync.Mutex
	deployments int
	armed       bool
	burning     bool
	deployed    bool
	broken      bool
}

// NewVirtualAntenna creates a stowed antenna controller.
func NewVirtualAntenna(clock osal.Clock, deployAfter time.Duration) *VirtualAntenna {
	if clock == nil {
		clock = osal.NewSystemClock()
	}
	return &VirtualAntenna{clock: clock, deployAfter: deployAfter}
}

// SetBroken makes auto deployment burn without releasing the antennas.
func (a *VirtualAntenna) SetBroken(broken bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broken = broken
}

// Deployments returns how many auto deployments were started.
func (a *VirtualAntenna) Deployments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deployments
}

// Deployed reports whether all antennas are released.
func (a *VirtualAntenna) Deployed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateLocked()
	return a.deployed
}

// Write implements obc.Bus.
func (a *VirtualAntenna) Write(address byte, data []byte) obc.BusResult {
	return a.WriteRead(address, data, nil)
}

// Read implements obc.Bus. The controller only answers combined transfers.
func (a *VirtualAntenna) Read(byte, []byte) obc.BusResult {
	return obc.BusNack
}

// WriteRead implements obc.Bus.
func (a *VirtualAntenna) WriteRead(_ byte, request, response []byte) obc.BusResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(response)
	if len(request) == 0 {
		return obc.BusNack
	}
	a.updateLocked()

	switch request[0] {
	case antenna.OpReset:
		a.armed = false
		a.burning = false
	case antenna.OpArm:
		a.armed = true
	case antenna.OpDisarm:
		a.armed = false
		a.burning = false
	case antenna.OpAutoDeploy:
		if len(request) != 2 || request[1] == 0 {
			return obc.BusFailure
		}
		if !a.armed {
			return obc.BusOK
		}
		a.deployments++
		a.burning = true
		a.burnStarted = a.clock.Uptime()
	case antenna.OpStatus:
		if len(response) >= 2 {
			binary.LittleEndian.PutUint16(response, uint16(a.statusLocked()))
		}
	default:
		return obc.BusNack
	}
	return obc.BusOK
}

func (a *VirtualAntenna) updateLocked() {
	if !a.burning || a.broken {
		return
	}
	if a.clock.Uptime()-a.burnStarted >= a.deployAfter {
		a.burning = false
		a.deployed = true
	}
}

func (a *VirtualAntenna) statusLocked() antenna.Status {
	var s antenna.Status
	if a.armed {
		s |= antenna.StatusArmed
	}
	if a.burning {
		s |= antenna.StatusActive
	}
	if !a.deployed {
		s |= antenna.StatusNotDeployed1 | antenna.StatusNotDeployed2 |
			antenna.StatusNotDeployed3 | antenna.StatusNotDeployed4
	}
	return s
}

// Bench routes bus transactions to simulated devices by address.
// Transactions to unknown addresses are not acknowledged.
type Bench struct {
	devices map[byte]obc.Bus
	mu      sync.RWMutex
}

// NewBench creates an empty bench.
func NewBench() *Bench {
	return &Bench{devices: make(map[byte]obc.Bus)}
}

// Attach connects device at each of addresses.
func (b *Bench) Attach(device obc.Bus, addresses ...byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, addr := range addresses {
		b.devices[addr] = device
	}
}

// Detach removes the device at address.
func (b *Bench) Detach(address byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, address)
}

func (b *Bench) device(address byte) obc.Bus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.devices[address]
}

// Write implements obc.Bus.
func (b *Bench) Write(address byte, data []byte) obc.BusResult {
	if d := b.device(address); d != nil {
		return d.Write(address, data)
	}
	return obc.BusNack
}

// Read implements obc.Bus.
func (b *Bench) Read(address byte, buf []byte) obc.BusResult {
	if d := b.device(address); d != nil {
		return d.Read(address, buf)
	}
	clear(buf)
	return obc.BusNack
}

// WriteRead implements obc.Bus.
func (b *Bench) WriteRead(address byte, request, response []byte) obc.BusResult {
	if d := b.device(address); d != nil {
		return d.WriteRead(address, request, response)
	}
	clear(response)
	return obc.BusNack
}
