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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusResult_Err(t *testing.T) {
	t.Parallel()

	assert.NoError(t, BusOK.Err())
	assert.True(t, BusOK.OK())
	assert.False(t, BusNack.OK())
	assert.ErrorIs(t, BusClockLatched.Err(), ErrBusClockLatched)
	assert.ErrorIs(t, BusResult(99).Err(), ErrBusFailure)
	assert.Equal(t, "arbitration lost", BusArbitrationLost.String())
	assert.Equal(t, "bus result(99)", BusResult(99).String())
}

func TestWriteCommand(t *testing.T) {
	t.Parallel()

	bus := NewMockBus()
	assert.Equal(t, BusOK, WriteCommand(bus, TransmitterAddress, TxClearBeacon))

	calls := bus.Calls()
	assert.Len(t, calls, 1)
	assert.Equal(t, []byte{TxClearBeacon}, calls[0].Request)
	assert.Equal(t, TxClearBeacon, calls[0].Opcode())
}

func TestFallbackBus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		primaryResult  BusResult
		fallbackResult BusResult
		want           BusResult
		fallbackCalls  int
	}{
		{name: "primary ok", primaryResult: BusOK, fallbackResult: BusOK, want: BusOK, fallbackCalls: 0},
		{name: "fallback recovers", primaryResult: BusNack, fallbackResult: BusOK, want: BusOK, fallbackCalls: 1},
		{name: "both fail", primaryResult: BusNack, fallbackResult: BusTimeout, want: BusTimeout, fallbackCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			primary := NewMockBus()
			fallback := NewMockBus()
			primary.SetResult(ReceiverAddress, RxGetFrameCount, tt.primaryResult)
			fallback.SetResult(ReceiverAddress, RxGetFrameCount, tt.fallbackResult)
			fallback.SetResponse(ReceiverAddress, RxGetFrameCount, []byte{2, 0})

			bus := NewFallbackBus(primary, fallback)
			response := make([]byte, 2)
			got := bus.WriteRead(ReceiverAddress, []byte{RxGetFrameCount}, response)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, primary.TotalCalls())
			assert.Equal(t, tt.fallbackCalls, fallback.TotalCalls())
			if tt.fallbackCalls == 1 && tt.want == BusOK {
				assert.Equal(t, []byte{2, 0}, response)
			}
		})
	}
}

func TestFallbackBus_WriteAndRead(t *testing.T) {
	t.Parallel()

	primary := NewMockBus()
	fallback := NewMockBus()
	primary.SetResult(TransmitterAddress, TxReset, BusClockLatched)

	bus := NewFallbackBus(primary, fallback)
	assert.Equal(t, BusOK, bus.Write(TransmitterAddress, []byte{TxReset}))
	assert.Equal(t, 1, fallback.CallCount(TransmitterAddress, TxReset))

	// Plain reads are keyed by the last opcode written to the address.
	primary.SetResult(TransmitterAddress, TxGetState, BusNack)
	primary.Write(TransmitterAddress, []byte{TxGetState})
	fallback.SetResponse(TransmitterAddress, TxReset, []byte{0x0B})
	buf := make([]byte, 1)
	assert.Equal(t, BusOK, bus.Read(TransmitterAddress, buf))
	assert.Equal(t, []byte{0x0B}, buf)
}

func TestMockBus_HandlerAndDelay(t *testing.T) {
	t.Parallel()

	bus := NewMockBus()
	bus.SetHandler(ReceiverAddress, RxGetFrameCount, func(request, response []byte) BusResult {
		assert.Equal(t, []byte{RxGetFrameCount}, request)
		response[0] = 7
		return BusOK
	})

	response := []byte{0xAA, 0xAA}
	assert.Equal(t, BusOK, bus.WriteRead(ReceiverAddress, []byte{RxGetFrameCount}, response))
	assert.Equal(t, []byte{7, 0}, response, "response is zeroed before the handler runs")

	bus.Reset()
	assert.Zero(t, bus.TotalCalls())
	assert.Zero(t, bus.CallCount(ReceiverAddress, RxGetFrameCount))
}
