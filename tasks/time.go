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

// Package tasks contains the mission behaviors registered with the mission
// loop: time keeping, antenna and solar array deployment, beacon updates
// and telemetry collection and persistence.
package tasks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/fs"
	"github.com/ZaparooProject/go-obc/mission"
	"github.com/ZaparooProject/go-obc/osal"
	"github.com/ZaparooProject/go-obc/state"
)

// ErrTimeWentBackwards is reported by the time verifier.
var ErrTimeWentBackwards = errors.New("mission time went backwards")

const missionTimeSize = 8

const (
	// DefaultMissionTick is the mission loop period.
	DefaultMissionTick = 500 * time.Millisecond
	// DefaultMissionTimeFile holds the persisted mission time.
	DefaultMissionTimeFile = "/mission.time"
	// DefaultTimePersistInterval is how often mission time is saved.
	DefaultTimePersistInterval = 5 * time.Minute
)

// MissionTime is the time since mission start. It survives reboots through
// a persisted base added to the uptime of the current boot.
type MissionTime struct {
	clock osal.Clock
	// offset is base minus the uptime at which base was taken.
	offset atomic.Int64
}

// NewMissionTime starts counting from base.
func NewMissionTime(clock osal.Clock, base time.Duration) *MissionTime {
	m := &MissionTime{clock: clock}
	m.Set(base)
	return m
}

// LoadMissionTime restores the persisted mission time. A missing file
// starts the mission at zero.
func LoadMissionTime(fsys fs.FileSystem, path string, clock osal.Clock) (*MissionTime, error) {
	f, err := fsys.Open(path, fs.OpenExisting, fs.ReadOnly)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMissionTime(clock, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mission time: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf [missionTimeSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return nil, fmt.Errorf("failed to read mission time: %w", err)
	}
	base := time.Duration(binary.LittleEndian.Uint64(buf[:]))
	if base < 0 {
		return nil, fmt.Errorf("corrupt mission time %d", int64(base))
	}
	return NewMissionTime(clock, base), nil
}

// Now returns the current mission time.
func (m *MissionTime) Now() time.Duration {
	return time.Duration(m.offset.Load()) + m.clock.Uptime()
}

// Set moves the mission time to t.
func (m *MissionTime) Set(t time.Duration) {
	m.offset.Store(int64(t - m.clock.Uptime()))
}

// Persist writes the current mission time to path.
func (m *MissionTime) Persist(fsys fs.FileSystem, path string) error {
	var buf [missionTimeSize]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(m.Now()))

	f, err := fsys.Open(path, fs.CreateAlways, fs.WriteOnly)
	if err != nil {
		return fmt.Errorf("failed to open mission time: %w", err)
	}
	if _, err := f.Write(buf[:]); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write mission time: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close mission time: %w", err)
	}
	return nil
}

// TimeTask publishes mission time into the state and persists it.
type TimeTask struct {
	time            *MissionTime
	fs              fs.FileSystem
	storage         errcount.Counter
	path            string
	persistInterval time.Duration
	lastPersist     time.Duration
	lastVerified    time.Duration
}

// NewTimeTask creates the time task. storage receives persistence outcomes.
func NewTimeTask(
	missionTime *MissionTime,
	fsys fs.FileSystem,
	path string,
	persistInterval time.Duration,
	storage errcount.Counter,
) *TimeTask {
	return &TimeTask{
		time:            missionTime,
		fs:              fsys,
		path:            path,
		persistInterval: persistInterval,
		storage:         storage,
	}
}

// BuildUpdate returns the update that copies mission time into the state.
func (t *TimeTask) BuildUpdate() mission.UpdateDescriptor[state.SystemState] {
	return mission.UpdateDescriptor[state.SystemState]{
		Name: "mission time",
		Update: func(s *state.SystemState) mission.UpdateResult {
			s.Time = t.time.Now()
			return mission.UpdateOK
		},
	}
}

// BuildAction returns the action persisting mission time.
func (t *TimeTask) BuildAction() mission.ActionDescriptor[state.SystemState] {
	return mission.ActionDescriptor[state.SystemState]{
		Name: "persist mission time",
		Condition: func(s *state.SystemState) bool {
			delta := s.Time - t.lastPersist
			return delta < 0 || delta >= t.persistInterval
		},
		Action: func(s *state.SystemState) {
			err := t.time.Persist(t.fs, t.path)
			t.storage.Record(err == nil)
			if err != nil {
				obc.Errorf("mission time not persisted: %v", err)
				return
			}
			t.lastPersist = s.Time
		},
	}
}

// BuildVerify returns the check rejecting a mission time that decreased
// since the previous tick. Only the tick that observes the jump fails.
func (t *TimeTask) BuildVerify() mission.VerifyDescriptor[state.SystemState] {
	return mission.VerifyDescriptor[state.SystemState]{
		Name: "mission time monotonic",
		Verify: func(s *state.SystemState) error {
			previous := t.lastVerified
			t.lastVerified = s.Time
			if s.Time < previous {
				return fmt.Errorf("%w: %v after %v", ErrTimeWentBackwards, s.Time, previous)
			}
			return nil
		},
	}
}
