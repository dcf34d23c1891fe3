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

package telecommand

import (
	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/errcount"
)

// Command codes.
const (
	CodeSetBitrate            byte = 0x12
	CodeDeploySolarArray      byte = 0x2A
	CodeSetErrorCounterConfig byte = 0x36
	CodePing                  byte = 0x50
)

// Ping answers with "PONG".
type Ping struct{}

// Code implements Telecommand.
func (Ping) Code() byte { return CodePing }

// Execute implements Telecommand.
func (Ping) Execute([]byte) (Status, []byte) {
	return StatusOK, []byte("PONG")
}

// SolarArrayDeployer starts the solar array deployment.
type SolarArrayDeployer interface {
	DeploySolarArray()
}

// DeploySolarArray requests an early solar array deployment. The request is
// honoured by the mission loop once the earliest deployment time passes.
type DeploySolarArray struct {
	Deployer SolarArrayDeployer
}

// Code implements Telecommand.
func (DeploySolarArray) Code() byte { return CodeDeploySolarArray }

// Execute implements Telecommand.
func (c DeploySolarArray) Execute([]byte) (Status, []byte) {
	c.Deployer.DeploySolarArray()
	return StatusOK, nil
}

// BitrateSetter changes the downlink bit rate.
type BitrateSetter interface {
	SetTransmitterBitRate(rate obc.Bitrate) error
}

// SetBitrate changes the downlink bit rate. Params: [rate].
type SetBitrate struct {
	Radio BitrateSetter
}

// Code implements Telecommand.
func (SetBitrate) Code() byte { return CodeSetBitrate }

// Execute implements Telecommand.
func (c SetBitrate) Execute(params []byte) (Status, []byte) {
	if len(params) != 1 || !obc.Bitrate(params[0]).Valid() {
		return StatusInvalidParams, nil
	}
	if err := c.Radio.SetTransmitterBitRate(obc.Bitrate(params[0])); err != nil {
		obc.Errorf("set bitrate: %v", err)
		return StatusFailed, nil
	}
	return StatusOK, nil
}

// CounterConfigurer changes an error counter policy.
type CounterConfigurer interface {
	SetConfig(d errcount.Device, cfg errcount.Config) error
}

// SetErrorCounterConfig changes one subsystem's error counter policy.
// Params: [device, limit, increment, decrement].
type SetErrorCounterConfig struct {
	Counters CounterConfigurer
}

// Code implements Telecommand.
func (SetErrorCounterConfig) Code() byte { return CodeSetErrorCounterConfig }

// Execute implements Telecommand.
func (c SetErrorCounterConfig) Execute(params []byte) (Status, []byte) {
	if len(params) != 4 {
		return StatusInvalidParams, nil
	}
	d := errcount.Device(params[0])
	cfg := errcount.Config{Limit: params[1], Increment: params[2], Decrement: params[3]}
	if cfg.Limit == 0 {
		return StatusInvalidParams, nil
	}
	if err := c.Counters.SetConfig(d, cfg); err != nil {
		obc.Warnf("set error counter config: %v", err)
		return StatusInvalidParams, nil
	}
	return StatusOK, []byte{params[0]}
}
