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

package obc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transmitterFunc func(payload []byte) error

func (f transmitterFunc) SendFrame(payload []byte) error {
	return f(payload)
}

func TestSendFrameWithRetry_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	tx := transmitterFunc(func(payload []byte) error {
		calls++
		assert.Equal(t, []byte("PONG"), payload)
		return nil
	})

	require.NoError(t, SendFrameWithRetry(context.Background(), tx, []byte("PONG"), 3))
	assert.Equal(t, 1, calls)
}

func TestSendFrameWithRetry_RetriesRejectedFrame(t *testing.T) {
	t.Parallel()

	calls := 0
	tx := transmitterFunc(func([]byte) error {
		calls++
		if calls < 2 {
			return ErrFrameRejected
		}
		return nil
	})

	require.NoError(t, SendFrameWithRetry(context.Background(), tx, []byte{1}, 3))
	assert.Equal(t, 2, calls)
}

func TestSendFrameWithRetry_NonRetryableErrorAbortsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	tx := transmitterFunc(func([]byte) error {
		calls++
		return ErrFrameTooLarge
	})

	err := SendFrameWithRetry(context.Background(), tx, []byte{1}, 3)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, 1, calls)
}

func TestSendFrameWithRetry_MaxRetriesExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	tx := transmitterFunc(func([]byte) error {
		calls++
		return NewBusError("send frame", TransmitterAddress, BusNack)
	})

	start := time.Now()
	err := SendFrameWithRetry(context.Background(), tx, []byte{1}, 2)
	require.ErrorIs(t, err, ErrBusNack)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), ReplyRetryDelay1)
}

func TestSendFrameWithRetry_ContextCancelledBeforeAttempt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	tx := transmitterFunc(func([]byte) error {
		calls++
		return nil
	})

	err := SendFrameWithRetry(ctx, tx, []byte{1}, 3)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestSendFrameWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	tx := transmitterFunc(func([]byte) error {
		cancel()
		return ErrFrameRejected
	})

	err := SendFrameWithRetry(ctx, tx, []byte{1}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
