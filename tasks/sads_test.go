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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/mission"
	"github.com/ZaparooProject/go-obc/state"
)

type fakePower struct {
	err   error
	calls []string
}

func (p *fakePower) SetThermalKnife(line PowerLine, on bool) error {
	p.calls = append(p.calls, fmt.Sprintf("knife %s %t", line, on))
	return p.err
}

func (p *fakePower) EnableBurnSwitch(line PowerLine) error {
	p.calls = append(p.calls, fmt.Sprintf("burn %s", line))
	return p.err
}

func TestSolarArrayTask_FullSequence(t *testing.T) {
	t.Parallel()

	const threshold = time.Hour
	power := &fakePower{}
	task := NewSolarArrayTask(power, errcount.Counter{}, SolarArrayConfig{
		EarliestDeployment: 30 * time.Minute,
		AutoDeployment:     threshold,
	})
	action := task.BuildAction()
	s := state.Empty()

	s.Time = threshold - time.Millisecond
	assert.False(t, action.Condition(&s))
	assert.Equal(t, StepIdle, task.Step())
	assert.False(t, task.InProgress(), "idle before the trigger")

	s.Time = threshold + time.Millisecond
	require.True(t, action.Condition(&s))
	action.Action(&s)
	assert.Equal(t, Step(1), task.Step(), "one tick advances exactly one step")
	assert.True(t, task.InProgress())

	for tick := 2; tick <= int(StepDone); tick++ {
		s.Time += SolarArrayBurnTime
		require.True(t, action.Condition(&s), "tick %d", tick)
		action.Action(&s)
		require.Equal(t, Step(tick), task.Step())
	}

	assert.False(t, task.InProgress())
	assert.Equal(t, StepDone, task.Step())
	for range 3 {
		s.Time += time.Hour
		assert.False(t, action.Condition(&s), "done is terminal")
	}

	assert.Equal(t, []string{
		"knife main true", "burn main", "knife main false",
		"knife redundant true", "burn redundant", "knife redundant false",
		"knife main true", "burn main", "knife main false",
		"knife redundant true", "burn redundant", "knife redundant false",
		"knife main false", "knife redundant false",
	}, power.calls)

	update := task.BuildUpdate()
	assert.Equal(t, mission.UpdateOK, update.Update(&s))
	assert.True(t, s.SolarArray.Deployed)
}

func TestSolarArrayTask_HoldsBetweenSteps(t *testing.T) {
	t.Parallel()

	task := NewSolarArrayTask(&fakePower{}, errcount.Counter{}, SolarArrayConfig{AutoDeployment: time.Minute})
	action := task.BuildAction()
	s := state.Empty()
	s.Time = time.Minute

	action.Action(&s) // knife on
	assert.True(t, action.Condition(&s), "no hold after switching a knife")
	action.Action(&s) // settle
	assert.False(t, action.Condition(&s))
	s.Time += SolarArraySettleTime
	assert.True(t, action.Condition(&s))
	action.Action(&s) // burn
	action.Action(&s) // burn wait
	s.Time += SolarArrayBurnTime - time.Millisecond
	assert.False(t, action.Condition(&s))
	s.Time += time.Millisecond
	assert.True(t, action.Condition(&s))
}

func TestSolarArrayTask_ExplicitDeploy(t *testing.T) {
	t.Parallel()

	config := SolarArrayConfig{EarliestDeployment: 40 * time.Minute, AutoDeployment: 96 * time.Hour}
	task := NewSolarArrayTask(&fakePower{}, errcount.Counter{}, config)
	action := task.BuildAction()
	s := state.Empty()
	s.Time = time.Hour

	assert.False(t, action.Condition(&s))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		task.DeploySolarArray()
	}()
	wg.Wait()
	assert.True(t, action.Condition(&s))

	s.Time = 39 * time.Minute
	assert.False(t, action.Condition(&s), "requests before the earliest time wait")
}

func TestSolarArrayTask_FailuresAdvanceAndCount(t *testing.T) {
	t.Parallel()

	counters := errcount.New(errcount.WithConfig(errcount.DeviceSolarArray,
		errcount.Config{Limit: 255, Increment: 1, Decrement: 1}))
	power := &fakePower{err: errors.New("gpio fault")}
	task := NewSolarArrayTask(power, counters.Counter(errcount.DeviceSolarArray),
		SolarArrayConfig{AutoDeployment: time.Minute})
	action := task.BuildAction()
	s := state.Empty()
	s.Time = time.Minute

	for range int(StepDone) {
		require.True(t, action.Condition(&s))
		action.Action(&s)
		s.Time += SolarArrayBurnTime
	}

	assert.Equal(t, StepDone, task.Step())
	assert.Equal(t, uint8(len(power.calls)), counters.Current(errcount.DeviceSolarArray))
}

func TestStepOp_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "burn wait", opBurnWait.String())
	assert.Equal(t, "op(99)", stepOp(99).String())
	assert.Equal(t, "redundant", PowerLineRedundant.String())
}
