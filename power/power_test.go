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

package power

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/ZaparooProject/go-obc/tasks"
)

// recordingPin logs every level written to it.
type recordingPin struct {
	*gpiotest.Pin
	err    error
	levels []gpio.Level
}

func (p *recordingPin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	if p.err != nil {
		return p.err
	}
	return p.Pin.Out(l)
}

func newPin(name string) *recordingPin {
	return &recordingPin{Pin: &gpiotest.Pin{N: name, L: gpio.High}}
}

type testLines struct {
	mainKnife, redKnife, mainBurn, redBurn *recordingPin
}

func newTestGPIO(t *testing.T) (*GPIO, *testLines) {
	t.Helper()
	tl := &testLines{
		mainKnife: newPin("KNIFE_A"),
		redKnife:  newPin("KNIFE_B"),
		mainBurn:  newPin("BURN_A"),
		redBurn:   newPin("BURN_B"),
	}
	g, err := New(Lines{
		Knives: [2]gpio.PinOut{tl.mainKnife, tl.redKnife},
		Burns:  [2]gpio.PinOut{tl.mainBurn, tl.redBurn},
	}, time.Millisecond)
	require.NoError(t, err)
	g.sleep = func(time.Duration) {}
	return g, tl
}

func TestNew_DrivesLinesLow(t *testing.T) {
	t.Parallel()

	_, tl := newTestGPIO(t)
	for _, p := range []*recordingPin{tl.mainKnife, tl.redKnife, tl.mainBurn, tl.redBurn} {
		assert.Equal(t, gpio.Low, p.Read(), p.N)
	}
}

func TestNew_MissingPin(t *testing.T) {
	t.Parallel()

	_, err := New(Lines{Knives: [2]gpio.PinOut{newPin("A"), newPin("B")}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pin not set")
}

func TestSetThermalKnife(t *testing.T) {
	t.Parallel()

	g, tl := newTestGPIO(t)

	require.NoError(t, g.SetThermalKnife(tasks.PowerLineRedundant, true))
	assert.Equal(t, gpio.High, tl.redKnife.Read())
	assert.Equal(t, gpio.Low, tl.mainKnife.Read())

	require.NoError(t, g.SetThermalKnife(tasks.PowerLineRedundant, false))
	assert.Equal(t, gpio.Low, tl.redKnife.Read())

	require.Error(t, g.SetThermalKnife(tasks.PowerLine(7), true))
}

func TestEnableBurnSwitch_Pulses(t *testing.T) {
	t.Parallel()

	g, tl := newTestGPIO(t)
	var slept time.Duration
	g.sleep = func(d time.Duration) { slept = d }

	require.NoError(t, g.EnableBurnSwitch(tasks.PowerLineMain))

	// New drove it low once before the pulse.
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low}, tl.mainBurn.levels)
	assert.Equal(t, time.Millisecond, slept)
	assert.Equal(t, gpio.Low, tl.mainBurn.Read())
}

func TestEnableBurnSwitch_ReleasesAfterFailure(t *testing.T) {
	t.Parallel()

	g, tl := newTestGPIO(t)
	tl.redBurn.err = errors.New("line stuck")
	slept := false
	g.sleep = func(time.Duration) { slept = true }

	err := g.EnableBurnSwitch(tasks.PowerLineRedundant)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redundant burn switch")
	assert.False(t, slept)
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low}, tl.redBurn.levels)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	names := Pins{
		MainKnife:      "OBC_TEST_KNIFE_MAIN",
		RedundantKnife: "OBC_TEST_KNIFE_RED",
		MainBurn:       "OBC_TEST_BURN_MAIN",
		RedundantBurn:  "OBC_TEST_BURN_RED",
	}
	for i, name := range []string{names.MainKnife, names.RedundantKnife, names.MainBurn} {
		require.NoError(t, gpioreg.Register(&gpiotest.Pin{N: name, Num: 9100 + i}))
	}

	_, err := lookup(names)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"OBC_TEST_BURN_RED" not found`)

	require.NoError(t, gpioreg.Register(&gpiotest.Pin{N: names.RedundantBurn, Num: 9103}))
	lines, err := lookup(names)
	require.NoError(t, err)
	assert.Equal(t, names.MainBurn, lines.Burns[tasks.PowerLineMain].Name())
}

func TestGPIO_ImplementsPowerControl(t *testing.T) {
	t.Parallel()

	var _ tasks.PowerControl = (*GPIO)(nil)
}
