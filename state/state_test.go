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

package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	s := New()
	require.NotNil(t, s.Telemetry)
	assert.Zero(t, s.Time)
	assert.False(t, s.Antenna.Deployed)
	assert.False(t, s.SolarArray.Deployed)

	empty := Empty()
	assert.Nil(t, empty.Telemetry)
}

func TestTelemetryBuffer_StoreAndRead(t *testing.T) {
	t.Parallel()

	b := NewTelemetryBuffer()
	require.NoError(t, b.Store(time.Second, func(data []byte) {
		assert.Len(t, data, TelemetrySize)
		data[0] = 0xAB
		data[TelemetrySize-1] = 0xCD
	}))

	snapshot, err := b.Snapshot(time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), snapshot[0])
	assert.Equal(t, byte(0xCD), snapshot[TelemetrySize-1])

	require.NoError(t, b.Read(time.Second, func(_ []byte, revision uint64) {
		assert.Equal(t, uint64(1), revision)
	}))
}

func TestTelemetryBuffer_TimeoutMeansUnavailable(t *testing.T) {
	t.Parallel()

	b := NewTelemetryBuffer()
	held := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Store(time.Second, func([]byte) {
			close(held)
			<-release
		})
	}()
	<-held

	start := time.Now()
	err := b.Read(20*time.Millisecond, func([]byte, uint64) {
		t.Error("read must not run while the lock is held")
	})

	require.ErrorIs(t, err, ErrTelemetryUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	close(release)
	wg.Wait()
	_, err = b.Snapshot(time.Second)
	require.NoError(t, err)
}

func TestTelemetryBuffer_NilIsUnavailable(t *testing.T) {
	t.Parallel()

	var b *TelemetryBuffer
	require.ErrorIs(t, b.Store(time.Millisecond, func([]byte) {}), ErrTelemetryUnavailable)
	_, err := b.Snapshot(time.Millisecond)
	require.ErrorIs(t, err, ErrTelemetryUnavailable)
}
