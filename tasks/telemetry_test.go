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
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/fs"
	"github.com/ZaparooProject/go-obc/state"
)

func readAll(t *testing.T, fsys fs.FileSystem, path string) []byte {
	t.Helper()
	f, err := fsys.Open(path, fs.OpenExisting, fs.ReadOnly)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func record(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, state.TelemetrySize)
}

func TestSaveToFile_AppendsAlignedRecords(t *testing.T) {
	t.Parallel()

	memfs := fs.NewMemory()
	config := DefaultTelemetryConfig()

	require.NoError(t, SaveToFile(memfs, config, record(0xA1)))
	require.NoError(t, SaveToFile(memfs, config, record(0xB2)))

	data := readAll(t, memfs, config.CurrentFile)
	require.Len(t, data, 2*state.TelemetrySize)
	assert.Equal(t, record(0xA1), data[:state.TelemetrySize])
	assert.Equal(t, record(0xB2), data[state.TelemetrySize:])
}

func TestSaveToFile_TornRecordIsSkipped(t *testing.T) {
	t.Parallel()

	memfs := fs.NewMemory()
	config := DefaultTelemetryConfig()
	f, err := memfs.Open(config.CurrentFile, fs.CreateNew, fs.WriteOnly)
	require.NoError(t, err)
	_, err = f.Write(record(0x01)[:100])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, SaveToFile(memfs, config, record(0x02)))

	data := readAll(t, memfs, config.CurrentFile)
	require.Len(t, data, 2*state.TelemetrySize)
	assert.Equal(t, record(0x02), data[state.TelemetrySize:])
}

func TestSaveToFile_Rotation(t *testing.T) {
	t.Parallel()

	memfs := fs.NewMemory()
	config := DefaultTelemetryConfig()
	config.MaxFileSize = 2 * state.TelemetrySize

	for _, fill := range []byte{1, 2, 3} {
		require.NoError(t, SaveToFile(memfs, config, record(fill)))
	}

	previous := readAll(t, memfs, config.PreviousFile)
	assert.Len(t, previous, 2*state.TelemetrySize)
	assert.Equal(t, byte(1), previous[0])
	assert.Equal(t, record(3), readAll(t, memfs, config.CurrentFile))

	// A second rotation replaces the previous file.
	require.NoError(t, SaveToFile(memfs, config, record(4)))
	require.NoError(t, SaveToFile(memfs, config, record(5)))
	previous = readAll(t, memfs, config.PreviousFile)
	assert.Equal(t, byte(3), previous[0])
	assert.Equal(t, record(5), readAll(t, memfs, config.CurrentFile))
}

func TestTelemetryTask_Action(t *testing.T) {
	t.Parallel()

	memfs := fs.NewMemory()
	counters := errcount.New()
	counters.Increment(errcount.DeviceStorage)
	config := DefaultTelemetryConfig()
	action := NewTelemetryTask(memfs, counters.Counter(errcount.DeviceStorage), config).BuildAction()
	s := state.New()
	require.NoError(t, s.Telemetry.Store(time.Second, func(data []byte) { data[0] = 0x7E }))

	s.Time = config.Delay - time.Second
	assert.False(t, action.Condition(s))
	s.Time = config.Delay
	require.True(t, action.Condition(s))
	action.Action(s)

	data := readAll(t, memfs, config.CurrentFile)
	require.Len(t, data, state.TelemetrySize)
	assert.Equal(t, byte(0x7E), data[0])
	assert.False(t, action.Condition(s))
	assert.Equal(t, uint8(3), counters.Current(errcount.DeviceStorage), "success lowers the counter")

	s.Time = 0
	assert.True(t, action.Condition(s), "time running backwards saves immediately")
}

func TestTelemetryTask_LockTimeoutSkipsTick(t *testing.T) {
	t.Parallel()

	memfs := fs.NewMemory()
	task := NewTelemetryTask(memfs, errcount.Counter{}, DefaultTelemetryConfig())
	task.lockTimeout = 10 * time.Millisecond
	action := task.BuildAction()
	s := state.New()
	s.Time = time.Hour

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Telemetry.Store(time.Second, func([]byte) {
			close(held)
			<-release
		})
	}()
	<-held

	action.Action(s)
	close(release)

	assert.False(t, memfs.Exists(DefaultTelemetryCurrentFile))
	assert.True(t, action.Condition(s))
}
