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

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/antenna"
	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/internal/config"
	"github.com/ZaparooProject/go-obc/mission"
	"github.com/ZaparooProject/go-obc/osal"
	"github.com/ZaparooProject/go-obc/state"
	"github.com/ZaparooProject/go-obc/tasks"
	"github.com/ZaparooProject/go-obc/telecommand"
)

// systemTasks is the number of osal tasks: comm, telemetry and recovery.
const systemTasks = 3

// system is the wired on-board software.
type system struct {
	env         *environment
	counters    *errcount.Counting
	scheduler   *osal.Scheduler
	comm        *obc.Comm
	recoverer   *obc.CommRecoverer
	uplink      *telecommand.Handler
	state       *state.SystemState
	missionTime *tasks.MissionTime
	loop        *mission.Loop[state.SystemState]
	collector   *tasks.TelemetryCollector
	solarArray  *tasks.SolarArrayTask
	recoverCh   chan struct{}
	cancel      context.CancelFunc
	timeFile    string
}

func newSystem(cfg *config.Config, env *environment) (*system, error) {
	s := &system{
		env:       env,
		recoverCh: make(chan struct{}, 1),
		timeFile:  cfg.Mission.TimeFile,
	}

	counterOpts, err := cfg.CounterOptions()
	if err != nil {
		return nil, err
	}
	counterOpts = append(counterOpts, errcount.WithLimitHandler(s.onErrorLimit))
	s.counters = errcount.New(counterOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.scheduler = osal.NewScheduler(ctx, systemTasks)

	s.comm, err = obc.New(env.bus, s.counters.Counter(errcount.DeviceComm),
		obc.WithConfig(cfg.CommOptions()),
		obc.WithClock(env.clock),
		obc.WithScheduler(s.scheduler),
		obc.WithBusName(env.busName),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create comm driver: %w", err)
	}
	s.recoverer = obc.NewCommRecoverer(s.comm, cfg.Comm.RecoveryBackoff, cfg.Comm.RecoveryRounds)

	storage := s.counters.Counter(errcount.DeviceStorage)
	s.missionTime, err = tasks.LoadMissionTime(env.fsys, cfg.Mission.TimeFile, env.clock)
	if err != nil {
		storage.Failure()
		obc.Errorf("mission time lost, starting from zero: %v", err)
		s.missionTime = tasks.NewMissionTime(env.clock, 0)
	}

	antennaDriver := antenna.New(env.bus, s.counters.Counter(errcount.DeviceAntenna),
		antenna.WithAddress(cfg.Mission.AntennaAddress),
		antenna.WithBurnTime(cfg.Mission.AntennaBurnTime),
	)
	s.solarArray = tasks.NewSolarArrayTask(env.power, s.counters.Counter(errcount.DeviceSolarArray), cfg.SolarArray())

	s.uplink, err = telecommand.NewHandler(
		telecommand.NewDecoder(cfg.Uplink.SecurityCode),
		telecommand.Ping{},
		telecommand.DeploySolarArray{Deployer: s.solarArray},
		telecommand.SetBitrate{Radio: s.comm},
		telecommand.SetErrorCounterConfig{Counters: s.counters},
	)
	if err != nil {
		cancel()
		return nil, err
	}
	s.comm.SetFrameHandler(s.uplink)

	s.state = state.New()
	s.collector = tasks.NewTelemetryCollector(s.comm, s.counters, s.missionTime,
		s.state.Telemetry, cfg.Telemetry.CollectInterval)

	timeTask := tasks.NewTimeTask(s.missionTime, env.fsys, cfg.Mission.TimeFile,
		cfg.Mission.TimePersistInterval, storage)
	antennaTask := tasks.NewAntennaTask(antennaDriver, cfg.Antenna())
	beaconTask := tasks.NewBeaconTask(s.comm, cfg.Mission.BeaconInterval)
	telemetryTask := tasks.NewTelemetryTask(env.fsys, storage, cfg.TelemetryTask())

	s.loop = mission.NewLoop(s.state, cfg.Mission.Tick)
	err = errors.Join(
		s.loop.AddUpdate(
			timeTask.BuildUpdate(),
			antennaTask.BuildUpdate(),
			s.solarArray.BuildUpdate(),
		),
		s.loop.AddVerify(timeTask.BuildVerify()),
		s.loop.AddAction(
			timeTask.BuildAction(),
			antennaTask.BuildAction(),
			s.solarArray.BuildAction(),
			beaconTask.BuildAction(),
			telemetryTask.BuildAction(),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start brings up the radio, the background tasks and the mission loop.
func (s *system) Start(ctx context.Context) error {
	if err := s.comm.Initialize(); err != nil {
		return err
	}
	if err := s.comm.StartTask(); err != nil {
		return err
	}
	if _, err := s.collector.Start(s.scheduler); err != nil {
		return err
	}
	recovery, err := s.scheduler.CreateTask("recovery", s.runRecovery)
	if err != nil {
		return fmt.Errorf("failed to create recovery task: %w", err)
	}
	recovery.Resume()
	return s.loop.Start(ctx)
}

// Stop halts the loop and tasks and saves the mission time.
func (s *system) Stop() {
	s.loop.Stop()
	if err := s.comm.Close(); err != nil {
		obc.Warnf("failed to close comm driver: %v", err)
	}
	s.cancel()
	s.scheduler.Shutdown()
	if err := s.missionTime.Persist(s.env.fsys, s.timeFile); err != nil {
		obc.Errorf("mission time not saved on shutdown: %v", err)
	}
}

// onErrorLimit runs on the failing goroutine, so radio recovery is handed
// to the recovery task.
func (s *system) onErrorLimit(d errcount.Device, value uint8) {
	obc.Warnf("%s error counter reached %d", d, value)
	if d != errcount.DeviceComm {
		return
	}
	select {
	case s.recoverCh <- struct{}{}:
	default:
	}
}

func (s *system) runRecovery(ctx context.Context, task *osal.Task) {
	for {
		if err := task.Checkpoint(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.recoverCh:
		}
		if err := s.recoverer.AttemptRecovery(ctx); err != nil {
			obc.Errorf("%v", err)
		}
	}
}
