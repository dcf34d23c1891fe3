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

package tasks

import (
	"fmt"
	"sync/atomic"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/mission"
	"github.com/ZaparooProject/go-obc/state"
)

// PowerLine selects one of the two redundant deployment power paths.
type PowerLine uint8

const (
	PowerLineMain PowerLine = iota
	PowerLineRedundant
)

func (l PowerLine) String() string {
	if l == PowerLineMain {
		return "main"
	}
	return "redundant"
}

// PowerControl drives the thermal knives and burn switches releasing the
// solar array.
type PowerControl interface {
	SetThermalKnife(line PowerLine, on bool) error
	EnableBurnSwitch(line PowerLine) error
}

// Solar array schedule defaults.
const (
	DefaultSolarArrayEarliestDeployment = 40 * time.Minute
	DefaultSolarArrayAutoDeployment     = 4 * 24 * time.Hour
	SolarArraySettleTime                = 100 * time.Millisecond
	SolarArrayBurnTime                  = 2 * time.Minute
)

// SolarArrayConfig is the deployment schedule.
type SolarArrayConfig struct {
	// EarliestDeployment gates an explicitly requested deployment.
	EarliestDeployment time.Duration
	// AutoDeployment starts the deployment without a request.
	AutoDeployment time.Duration
}

// DefaultSolarArrayConfig returns the flight schedule.
func DefaultSolarArrayConfig() SolarArrayConfig {
	return SolarArrayConfig{
		EarliestDeployment: DefaultSolarArrayEarliestDeployment,
		AutoDeployment:     DefaultSolarArrayAutoDeployment,
	}
}

// Step is the position in the deployment sequence.
type Step uint8

const (
	StepIdle Step = 0
	StepDone Step = 23
)

type stepOp uint8

const (
	opMainKnifeOn stepOp = iota
	opMainKnifeOff
	opMainBurn
	opRedundantKnifeOn
	opRedundantKnifeOff
	opRedundantBurn
	opSettle
	opBurnWait
)

var stepOpNames = [...]string{
	opMainKnifeOn:       "main knife on",
	opMainKnifeOff:      "main knife off",
	opMainBurn:          "main burn",
	opRedundantKnifeOn:  "redundant knife on",
	opRedundantKnifeOff: "redundant knife off",
	opRedundantBurn:     "redundant burn",
	opSettle:            "settle",
	opBurnWait:          "burn wait",
}

func (o stepOp) String() string {
	if int(o) < len(stepOpNames) {
		return stepOpNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Each burn is attempted twice on both lines; the knives are switched off
// again at the end regardless of earlier failures.
var deploymentSequence = [StepDone]stepOp{
	opMainKnifeOn, opSettle, opMainBurn, opBurnWait, opMainKnifeOff,
	opRedundantKnifeOn, opSettle, opRedundantBurn, opBurnWait, opRedundantKnifeOff,
	opMainKnifeOn, opSettle, opMainBurn, opBurnWait, opMainKnifeOff,
	opRedundantKnifeOn, opSettle, opRedundantBurn, opBurnWait, opRedundantKnifeOff,
	opMainKnifeOff, opSettle, opRedundantKnifeOff,
}

// SolarArrayTask runs the solar array deployment sequence, one step per
// mission tick. Once StepDone is reached no further action is taken.
type SolarArrayTask struct {
	power      PowerControl
	counter    errcount.Counter
	config     SolarArrayConfig
	step       atomic.Uint32
	requested  atomic.Bool
	nextStepAt time.Duration
}

// NewSolarArrayTask creates the deployment task. counter receives the
// outcome of each power operation.
func NewSolarArrayTask(power PowerControl, counter errcount.Counter, config SolarArrayConfig) *SolarArrayTask {
	return &SolarArrayTask{power: power, counter: counter, config: config}
}

// DeploySolarArray requests a deployment ahead of the automatic schedule.
// Safe to call from any goroutine.
func (t *SolarArrayTask) DeploySolarArray() {
	t.requested.Store(true)
}

// Step returns the current sequence position.
func (t *SolarArrayTask) Step() Step {
	return Step(t.step.Load())
}

// InProgress reports whether the sequence has started but not finished.
// An idle task that has not been triggered is not in progress.
func (t *SolarArrayTask) InProgress() bool {
	s := t.Step()
	return s != StepIdle && s != StepDone
}

// BuildAction returns the action executing the next step.
func (t *SolarArrayTask) BuildAction() mission.ActionDescriptor[state.SystemState] {
	return mission.ActionDescriptor[state.SystemState]{
		Name:      "deploy solar array",
		Condition: t.ready,
		Action:    t.advance,
	}
}

// BuildUpdate returns the update publishing the deployment status.
func (t *SolarArrayTask) BuildUpdate() mission.UpdateDescriptor[state.SystemState] {
	return mission.UpdateDescriptor[state.SystemState]{
		Name: "solar array status",
		Update: func(s *state.SystemState) mission.UpdateResult {
			s.SolarArray.Deployed = t.Step() == StepDone
			return mission.UpdateOK
		},
	}
}

func (t *SolarArrayTask) ready(s *state.SystemState) bool {
	switch step := t.Step(); {
	case step >= StepDone:
		return false
	case step != StepIdle:
		return s.Time >= t.nextStepAt
	default:
		if t.requested.Load() && s.Time >= t.config.EarliestDeployment {
			return true
		}
		return s.Time >= t.config.AutoDeployment
	}
}

func (t *SolarArrayTask) advance(s *state.SystemState) {
	step := t.Step()
	if step >= StepDone {
		return
	}
	op := deploymentSequence[step]
	if step == StepIdle {
		obc.Infof("solar array deployment started at mission time %v", s.Time)
	}

	hold, err := t.execute(op)
	if op != opSettle && op != opBurnWait {
		t.counter.Record(err == nil)
	}
	if err != nil {
		obc.Errorf("solar array step %d (%s) failed: %v", step, op, err)
	}

	t.nextStepAt = s.Time + hold
	next := step + 1
	t.step.Store(uint32(next))
	if next == StepDone {
		t.requested.Store(false)
		obc.Infof("solar array deployment finished at mission time %v", s.Time)
	}
}

func (t *SolarArrayTask) execute(op stepOp) (time.Duration, error) {
	switch op {
	case opMainKnifeOn:
		return 0, t.power.SetThermalKnife(PowerLineMain, true)
	case opMainKnifeOff:
		return 0, t.power.SetThermalKnife(PowerLineMain, false)
	case opMainBurn:
		return 0, t.power.EnableBurnSwitch(PowerLineMain)
	case opRedundantKnifeOn:
		return 0, t.power.SetThermalKnife(PowerLineRedundant, true)
	case opRedundantKnifeOff:
		return 0, t.power.SetThermalKnife(PowerLineRedundant, false)
	case opRedundantBurn:
		return 0, t.power.EnableBurnSwitch(PowerLineRedundant)
	case opSettle:
		return SolarArraySettleTime, nil
	case opBurnWait:
		return SolarArrayBurnTime, nil
	default:
		return 0, fmt.Errorf("unknown solar array operation %d", op)
	}
}
