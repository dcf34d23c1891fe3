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
	"sync"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/internal/config"
	simtest "github.com/ZaparooProject/go-obc/internal/testing"
	"github.com/ZaparooProject/go-obc/osal"
	"github.com/ZaparooProject/go-obc/telecommand"
)

// simUplinkInterval is how often the simulated ground station pings.
const simUplinkInterval = 30 * time.Second

// simulation is a bench of simulated devices with a ground station that
// periodically uplinks a ping.
type simulation struct {
	bench   *simtest.Bench
	radio   *simtest.VirtualRadio
	antenna *simtest.VirtualAntenna
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newSimulation(ctx context.Context, clock osal.Clock, cfg *config.Config) *simulation {
	s := &simulation{
		bench:   simtest.NewBench(),
		radio:   simtest.NewVirtualRadio(clock),
		antenna: simtest.NewVirtualAntenna(clock, cfg.Mission.AntennaBurnTime),
	}
	s.bench.Attach(s.radio, obc.ReceiverAddress, obc.TransmitterAddress)
	s.bench.Attach(s.antenna, cfg.Mission.AntennaAddress)

	ctx, s.cancel = context.WithCancel(ctx)
	ping := telecommand.NewDecoder(cfg.Uplink.SecurityCode).Encode(telecommand.CodePing, nil)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.groundStation(ctx, ping)
	}()
	return s
}

func (s *simulation) groundStation(ctx context.Context, uplink []byte) {
	ticker := time.NewTicker(simUplinkInterval)
	defer ticker.Stop()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.radio.QueueUplink(uplink, 0x0400, 0x0800) {
			obc.Warnf("simulated receiver queue full")
		}
		sent := s.radio.Transmitted()
		if len(sent) > seen {
			obc.Debugf("ground station heard %d frames", len(sent)-seen)
			seen = len(sent)
		}
	}
}

// Stop ends the ground station.
func (s *simulation) Stop() {
	s.cancel()
	s.wg.Wait()
}
