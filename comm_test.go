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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/osal"
)

type commFixture struct {
	comm     *Comm
	bus      *MockBus
	clock    *osal.ManualClock
	counting *errcount.Counting
}

func newCommFixture(t *testing.T, opts ...Option) *commFixture {
	t.Helper()
	f := &commFixture{
		bus:      NewMockBus(),
		clock:    osal.NewManualClock(0),
		counting: errcount.New(),
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	comm, err := New(f.bus, f.counting.Counter(errcount.DeviceComm), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = comm.Close() })
	f.comm = comm
	return f
}

func (f *commFixture) errors() uint8 {
	return f.counting.Current(errcount.DeviceComm)
}

func frameBytes(fullSize, doppler, rssi uint16, payload []byte) []byte {
	out := []byte{
		byte(fullSize), byte(fullSize >> 8),
		byte(doppler), byte(doppler >> 8),
		byte(rssi), byte(rssi >> 8),
	}
	return append(out, payload...)
}

func TestNew_RejectsNilBus(t *testing.T) {
	t.Parallel()

	_, err := New(nil, errcount.NewCounter(nil, errcount.DeviceComm))
	require.Error(t, err)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.StallWindow = 0
	_, err := New(NewMockBus(), errcount.NewCounter(nil, errcount.DeviceComm), WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stall window")
}

func TestComm_InitializeDoesNotTouchBus(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	require.NoError(t, f.comm.Initialize())
	require.ErrorIs(t, f.comm.Initialize(), ErrAlreadyInitialized)

	assert.Zero(t, f.bus.TotalCalls())
	assert.Zero(t, f.errors())
}

func TestComm_InitializeOutOfResource(t *testing.T) {
	t.Parallel()

	scheduler := osal.NewScheduler(context.Background(), 0)
	t.Cleanup(scheduler.Shutdown)
	f := newCommFixture(t, WithScheduler(scheduler))

	err := f.comm.Initialize()

	require.ErrorIs(t, err, osal.ErrOutOfResource)
	assert.Equal(t, uint8(5), f.errors())
}

func TestComm_TaskLifecycle(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	require.ErrorIs(t, f.comm.StartTask(), ErrNotInitialized)

	require.NoError(t, f.comm.Initialize())
	assert.False(t, f.comm.Running())

	require.NoError(t, f.comm.StartTask())
	assert.True(t, f.comm.Running())
	require.ErrorIs(t, f.comm.StartTask(), ErrTaskAlreadyRunning)

	f.comm.Pause()
	assert.False(t, f.comm.Running())
	require.NoError(t, f.comm.StartTask())

	require.NoError(t, f.comm.Close())
	require.ErrorIs(t, f.comm.StartTask(), ErrClosed)
}

func TestComm_PauseWithoutTask(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	assert.NotPanics(t, f.comm.Pause)
	assert.Zero(t, f.bus.TotalCalls())
}

func TestComm_RestartResetsHardwareAndResumes(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	require.NoError(t, f.comm.Initialize())
	require.NoError(t, f.comm.StartTask())

	require.NoError(t, f.comm.Restart())

	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxHardwareReset))
	assert.True(t, f.comm.Running())
}

func TestComm_RestartResumesEvenWhenResetFails(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	require.NoError(t, f.comm.Initialize())
	f.bus.SetResult(ReceiverAddress, RxHardwareReset, BusNack)

	err := f.comm.Restart()

	require.ErrorIs(t, err, ErrBusNack)
	assert.True(t, f.comm.Running())
}

func TestComm_ResetCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		run     func(c *Comm) error
		name    string
		address byte
		opcode  byte
	}{
		{name: "hardware reset", run: (*Comm).Reset, address: ReceiverAddress, opcode: RxHardwareReset},
		{name: "reset transmitter", run: (*Comm).ResetTransmitter, address: TransmitterAddress, opcode: TxReset},
		{name: "reset receiver", run: (*Comm).ResetReceiver, address: ReceiverAddress, opcode: RxReset},
		{
			name: "receiver watchdog", run: (*Comm).ResetWatchdogReceiver,
			address: ReceiverAddress, opcode: RxWatchdogReset,
		},
		{
			name: "transmitter watchdog", run: (*Comm).ResetWatchdogTransmitter,
			address: TransmitterAddress, opcode: TxWatchdogReset,
		},
		{name: "remove frame", run: (*Comm).RemoveFrame, address: ReceiverAddress, opcode: RxRemoveFrame},
		{name: "clear beacon", run: (*Comm).ClearBeacon, address: TransmitterAddress, opcode: TxClearBeacon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newCommFixture(t)

			require.NoError(t, tt.run(f.comm))

			calls := f.bus.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, BusOpWrite, calls[0].Op)
			assert.Equal(t, tt.address, calls[0].Address)
			assert.Equal(t, []byte{tt.opcode}, calls[0].Request)

			f.bus.SetResult(tt.address, tt.opcode, BusTimeout)
			err := tt.run(f.comm)
			require.ErrorIs(t, err, ErrBusTimeout)
			assert.Equal(t, uint8(5), f.errors())
		})
	}
}

func TestComm_ErrorCounterFeeding(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	f.bus.SetResult(TransmitterAddress, TxReset, BusNack)
	for range 4 {
		require.Error(t, f.comm.ResetTransmitter())
	}
	assert.Equal(t, uint8(15), f.errors(), "counter saturates at the limit")

	f.bus.ClearResult(TransmitterAddress, TxReset)
	require.NoError(t, f.comm.ResetTransmitter())
	assert.Equal(t, uint8(13), f.errors())
}

func TestComm_SendFrame(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(TransmitterAddress, TxSendFrame, []byte{30})

	require.NoError(t, f.comm.SendFrame([]byte{0xDE, 0xAD}))

	calls := f.bus.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, BusOpWriteRead, calls[0].Op)
	assert.Equal(t, TransmitterAddress, calls[0].Address)
	assert.Equal(t, []byte{TxSendFrame, 0xDE, 0xAD}, calls[0].Request)
	assert.Equal(t, 1, calls[0].ResponseLen)
}

func TestComm_SendFrameTooLarge(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	err := f.comm.SendFrame(make([]byte, MaxDownlinkFrameSize+1))

	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, f.bus.TotalCalls())
	assert.Zero(t, f.errors())

	f.bus.SetResponse(TransmitterAddress, TxSendFrame, []byte{39})
	require.NoError(t, f.comm.SendFrame(make([]byte, MaxDownlinkFrameSize)))
}

func TestComm_SendFrameRejected(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(TransmitterAddress, TxSendFrame, []byte{FreeSlotsRejected})

	err := f.comm.SendFrame([]byte{1})

	require.ErrorIs(t, err, ErrFrameRejected)
	assert.True(t, HasTrace(err))
	assert.Equal(t, uint8(5), f.errors())
}

func scriptFreeSlots(bus *MockBus, slots ...byte) {
	var next atomic.Int32
	bus.SetHandler(TransmitterAddress, TxSendFrame, func(_, response []byte) BusResult {
		i := int(next.Add(1)) - 1
		if i >= len(slots) {
			i = len(slots) - 1
		}
		response[0] = slots[i]
		return BusOK
	})
}

func TestComm_StallTriggersSingleTransmitterReset(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	scriptFreeSlots(f.bus, 12, 11, 11)

	require.NoError(t, f.comm.SendFrame([]byte{1}))
	f.clock.Advance(15 * time.Second)
	require.NoError(t, f.comm.SendFrame([]byte{2}))
	assert.Equal(t, 1, f.bus.CallCount(TransmitterAddress, TxReset))

	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.comm.SendFrame([]byte{3}))

	assert.Equal(t, 1, f.bus.CallCount(TransmitterAddress, TxReset))
	assert.Equal(t, int64(1), f.comm.Metrics().StallResets)
}

func TestComm_NoResetInsideStallWindow(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	scriptFreeSlots(f.bus, 12, 11, 10)

	require.NoError(t, f.comm.SendFrame([]byte{1}))
	f.clock.Advance(14 * time.Second)
	require.NoError(t, f.comm.SendFrame([]byte{2}))
	f.clock.Advance(500 * time.Millisecond)
	require.NoError(t, f.comm.SendFrame([]byte{3}))

	assert.Zero(t, f.bus.CallCount(TransmitterAddress, TxReset))
}

func TestComm_DrainingQueueIsProgress(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	scriptFreeSlots(f.bus, 12, 13, 12)

	require.NoError(t, f.comm.SendFrame([]byte{1}))
	f.clock.Advance(20 * time.Second)
	require.NoError(t, f.comm.SendFrame([]byte{2}))
	f.clock.Advance(5 * time.Second)
	require.NoError(t, f.comm.SendFrame([]byte{3}))

	assert.Zero(t, f.bus.CallCount(TransmitterAddress, TxReset))
}

func TestComm_StallResetFailureNotRepeated(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	scriptFreeSlots(f.bus, 12, 11, 10, 9)
	f.bus.SetResult(TransmitterAddress, TxReset, BusNack)

	require.NoError(t, f.comm.SendFrame([]byte{1}))
	for range 3 {
		f.clock.Advance(15 * time.Second)
		require.NoError(t, f.comm.SendFrame([]byte{2}))
	}

	assert.Equal(t, 1, f.bus.CallCount(TransmitterAddress, TxReset))
}

func TestComm_ReceiveFrame(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	payload := []byte("uplink")
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(uint16(len(payload)), 0x0123, 0x0456, payload))

	var buffer [PreferredBufferSize]byte
	frame, err := f.comm.ReceiveFrame(buffer[:])

	require.NoError(t, err)
	assert.Equal(t, payload, frame.Payload())
	assert.Equal(t, len(payload), frame.Size())
	assert.Equal(t, len(payload), frame.FullSize())
	assert.Equal(t, uint16(0x0123), frame.Doppler())
	assert.Equal(t, uint16(0x0456), frame.RSSI())
	assert.True(t, frame.Verify())

	calls := f.bus.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 2, calls[0].ResponseLen)
	assert.Equal(t, FrameHeaderSize+len(payload), calls[1].ResponseLen)
}

func TestComm_ReceiveFrameIntoShortBuffer(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(32, 1, 2, payload))

	buffer := make([]byte, 22)
	frame, err := f.comm.ReceiveFrame(buffer)

	require.NoError(t, err)
	assert.Equal(t, 16, frame.Size())
	assert.Equal(t, 32, frame.FullSize())
	assert.Equal(t, payload[:16], frame.Payload())
}

func TestComm_ReceiveFramePartialHeader(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(10, 0x0A0B, 0x0C0D, make([]byte, 10)))

	frame, err := f.comm.ReceiveFrame(make([]byte, 4))

	require.NoError(t, err)
	assert.Equal(t, 10, frame.FullSize())
	assert.Equal(t, uint16(0x0A0B), frame.Doppler())
	assert.Zero(t, frame.Size())
}

func TestComm_ReceiveFrameBufferTooSmall(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	_, err := f.comm.ReceiveFrame(make([]byte, 1))

	require.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Zero(t, f.bus.TotalCalls())
	assert.Zero(t, f.errors())
}

func TestComm_ReceiveFrameSizeOutOfRange(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(MaxUplinkFrameSize+1, 0, 0, nil))

	_, err := f.comm.ReceiveFrame(make([]byte, PreferredBufferSize))

	require.ErrorIs(t, err, ErrFrameOutOfRange)
	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxGetFrame))
	assert.Equal(t, uint8(5), f.errors())
}

func TestComm_GetFrameCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr  error
		name     string
		response []byte
		want     int
	}{
		{name: "empty", response: []byte{0, 0}, want: 0},
		{name: "some frames", response: []byte{3, 0}, want: 3},
		{name: "queue full", response: []byte{64, 0}, want: 64},
		{name: "corrupt count", response: []byte{65, 0}, want: 0, wantErr: ErrFrameCountOutOfRange},
		{name: "corrupt high byte", response: []byte{1, 1}, want: 0, wantErr: ErrFrameCountOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newCommFixture(t)
			f.bus.SetResponse(ReceiverAddress, RxGetFrameCount, tt.response)

			count, err := f.comm.GetFrameCount()

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestComm_SetBeacon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		result  BusResult
		free    byte
		want    BeaconResult
		wantErr bool
		calls   int
	}{
		{name: "empty queue", payload: []byte{1}, free: 39, want: BeaconSet, calls: 1},
		{name: "full free count", payload: []byte{1}, free: 40, want: BeaconSet, calls: 1},
		{name: "queued behind frames", payload: []byte{1}, free: 38, want: BeaconIndeterminate, calls: 1},
		{name: "queue full", payload: []byte{1}, free: 0, want: BeaconIndeterminate, calls: 1},
		{name: "rejected", payload: []byte{1}, free: FreeSlotsRejected, want: BeaconFailed, wantErr: true, calls: 1},
		{
			name: "bus failure", payload: []byte{1}, free: 39, result: BusNack,
			want: BeaconFailed, wantErr: true, calls: 1,
		},
		{
			name: "oversize", payload: make([]byte, MaxDownlinkFrameSize+1), free: 39,
			want: BeaconFailed, wantErr: true, calls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newCommFixture(t)
			f.bus.SetResponse(TransmitterAddress, TxSendFrame, []byte{tt.free})
			if tt.result != BusOK {
				f.bus.SetResult(TransmitterAddress, TxSendFrame, tt.result)
			}

			got, err := f.comm.SetBeacon(NewBeacon(30*time.Second, tt.payload))

			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.calls, f.bus.CallCount(TransmitterAddress, TxSendFrame))
		})
	}
}

func TestComm_BeaconResend(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(TransmitterAddress, TxSendFrame, []byte{39})

	_, err := f.comm.SetBeacon(NewBeacon(30*time.Second, []byte("beacon")))
	require.NoError(t, err)

	f.clock.Advance(29 * time.Second)
	f.comm.resendBeacon()
	assert.Equal(t, 1, f.bus.CallCount(TransmitterAddress, TxSendFrame))

	f.clock.Advance(time.Second)
	f.comm.resendBeacon()
	assert.Equal(t, 2, f.bus.CallCount(TransmitterAddress, TxSendFrame))
	assert.Equal(t, []byte{TxSendFrame, 'b', 'e', 'a', 'c', 'o', 'n'}, f.bus.Calls()[1].Request)

	require.NoError(t, f.comm.ClearBeacon())
	f.clock.Advance(time.Minute)
	f.comm.resendBeacon()
	assert.Equal(t, 2, f.bus.CallCount(TransmitterAddress, TxSendFrame))
	assert.Equal(t, int64(1), f.comm.Metrics().BeaconResends)
}

func TestComm_TransmitterSettings(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	require.NoError(t, f.comm.SetTransmitterStateWhenIdle(IdleOn))
	require.NoError(t, f.comm.SetTransmitterBitRate(Bitrate9600))
	require.ErrorIs(t, f.comm.SetTransmitterBitRate(Bitrate(3)), ErrInvalidBitrate)

	calls := f.bus.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []byte{TxSetIdleState, 1}, calls[0].Request)
	assert.Equal(t, []byte{TxSetBitrate, 8}, calls[1].Request)
	assert.Zero(t, f.errors())
}

func TestComm_GetTransmitterState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  byte
		want TransmitterState
	}{
		{name: "defaults", raw: 0x00, want: TransmitterState{StateWhenIdle: IdleOff, Bitrate: Bitrate1200}},
		{
			name: "idle on with beacon at 4800",
			raw:  0x0B,
			want: TransmitterState{StateWhenIdle: IdleOn, Bitrate: Bitrate4800, BeaconActive: true},
		},
		{name: "9600", raw: 0x0C, want: TransmitterState{StateWhenIdle: IdleOff, Bitrate: Bitrate9600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newCommFixture(t)
			f.bus.SetResponse(TransmitterAddress, TxGetState, []byte{tt.raw})

			state, err := f.comm.GetTransmitterState()

			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestComm_GetReceiverTelemetry(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(ReceiverAddress, RxGetUptime, []byte{1, 2, 3, 4})
	f.bus.SetResponse(ReceiverAddress, RxGetTelemetry, []byte{
		0xFF, 0xFF,
		0x01, 0x00,
		0x02, 0x00,
		0x03, 0x00,
		0x04, 0x00,
		0x05, 0x00,
		0x06, 0x01,
	})
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(0, 0x0070, 0x0080, nil))
	_, err := f.comm.ReceiveFrame(make([]byte, PreferredBufferSize))
	require.NoError(t, err)

	telemetry, err := f.comm.GetReceiverTelemetry()

	require.NoError(t, err)
	assert.Equal(t, 4*24*time.Hour+3*time.Hour+2*time.Minute+time.Second, telemetry.Uptime)
	assert.Equal(t, ReceiverTelemetry{
		Uptime:                        telemetry.Uptime,
		LastReceivedDoppler:           0x0070,
		LastReceivedRSSI:              0x0080,
		NowDopplerOffset:              1,
		NowReceiverCurrentConsumption: 2,
		NowVoltage:                    3,
		NowOscillatorTemperature:      4,
		NowAmplifierTemperature:       5,
		NowRSSI:                       0x0106,
	}, telemetry)
}

func TestComm_GetTransmitterTelemetry(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(TransmitterAddress, TxGetUptime, []byte{0, 1, 0, 0})
	f.bus.SetResponse(TransmitterAddress, TxGetState, []byte{0x07})
	f.bus.SetResponse(TransmitterAddress, TxGetTelemetryLastFrame, []byte{1, 0, 2, 0, 3, 0, 4, 0})
	f.bus.SetResponse(TransmitterAddress, TxGetTelemetryInstant, []byte{9, 9, 9, 9, 5, 0, 6, 0})

	telemetry, err := f.comm.GetTransmitterTelemetry()

	require.NoError(t, err)
	assert.Equal(t, time.Minute, telemetry.Uptime)
	assert.Equal(t, TransmitterState{StateWhenIdle: IdleOn, Bitrate: Bitrate2400, BeaconActive: true}, telemetry.State)
	assert.Equal(t, TransmissionTelemetry{
		ReflectedPower:       1,
		AmplifierTemperature: 2,
		ForwardPower:         3,
		CurrentConsumption:   4,
	}, telemetry.LastTransmission)
	assert.Equal(t, uint16(5), telemetry.NowForwardPower)
	assert.Equal(t, uint16(6), telemetry.NowCurrentConsumption)
}

func TestComm_GetTelemetryPartialFailure(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResult(ReceiverAddress, RxGetUptime, BusNack)
	f.bus.SetResult(TransmitterAddress, TxGetState, BusTimeout)
	f.bus.SetResponse(ReceiverAddress, RxGetTelemetry, []byte{0, 0, 7, 0})
	f.bus.SetResponse(TransmitterAddress, TxGetUptime, []byte{5, 0, 0, 0})

	telemetry, err := f.comm.GetTelemetry()

	require.Error(t, err)
	require.ErrorIs(t, err, ErrBusNack)
	require.ErrorIs(t, err, ErrBusTimeout)
	assert.Zero(t, telemetry.Receiver.Uptime)
	assert.Equal(t, uint16(7), telemetry.Receiver.NowDopplerOffset)
	assert.Equal(t, 5*time.Second, telemetry.Transmitter.Uptime)
	assert.Zero(t, telemetry.Transmitter.State)
	assert.Equal(t, uint8(5), f.errors(), "one counter update per call")
	assert.Equal(t, 1, f.bus.CallCount(TransmitterAddress, TxGetTelemetryInstant))
}

func TestComm_PollHardwareDispatchesFrame(t *testing.T) {
	t.Parallel()

	var received []byte
	handler := FrameHandlerFunc(func(tx Transmitter, frame Frame) {
		received = append([]byte(nil), frame.Payload()...)
		assert.NoError(t, tx.SendFrame([]byte("ack")))
	})
	f := newCommFixture(t, WithFrameHandler(handler))
	f.bus.SetResponse(ReceiverAddress, RxGetFrameCount, []byte{1, 0})
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(4, 10, 20, []byte("ping")))
	f.bus.SetResponse(TransmitterAddress, TxSendFrame, []byte{39})

	processed := f.comm.PollHardware()

	assert.True(t, processed)
	assert.Equal(t, []byte("ping"), received)
	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxRemoveFrame))
	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxWatchdogReset))
	assert.Equal(t, 1, f.bus.CallCount(TransmitterAddress, TxSendFrame))
	assert.Zero(t, f.errors())

	metrics := f.comm.Metrics()
	assert.Equal(t, int64(1), metrics.PollCycles)
	assert.Equal(t, int64(1), metrics.FramesHandled)
}

func TestComm_PollHardwareDropsInvalidFrame(t *testing.T) {
	t.Parallel()

	calls := 0
	f := newCommFixture(t, WithFrameHandler(FrameHandlerFunc(func(Transmitter, Frame) { calls++ })))
	f.bus.SetResponse(ReceiverAddress, RxGetFrameCount, []byte{2, 0})
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(1, 0xFFFF, 0xFFFF, []byte{0}))

	processed := f.comm.PollHardware()

	assert.True(t, processed)
	assert.Zero(t, calls)
	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxRemoveFrame))
	assert.Equal(t, int64(1), f.comm.Metrics().InvalidFrames)
}

func TestComm_PollHardwareRemovesFrameAfterReceiveFailure(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(ReceiverAddress, RxGetFrameCount, []byte{1, 0})
	f.bus.SetResult(ReceiverAddress, RxGetFrame, BusFailure)

	assert.True(t, f.comm.PollHardware())
	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxRemoveFrame))
}

func TestComm_PollHardwareNoFrames(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	processed := f.comm.PollHardware()

	assert.False(t, processed)
	assert.Zero(t, f.bus.CallCount(ReceiverAddress, RxGetFrame))
	assert.Zero(t, f.bus.CallCount(ReceiverAddress, RxRemoveFrame))
	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxWatchdogReset))
}

func TestComm_PollHardwareCountFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		rxWatchdogResult   BusResult
		txWatchdogExpected int
	}{
		{name: "receiver watchdog recovers", rxWatchdogResult: BusOK, txWatchdogExpected: 0},
		{name: "falls back to transmitter watchdog", rxWatchdogResult: BusNack, txWatchdogExpected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newCommFixture(t)
			f.bus.SetResult(ReceiverAddress, RxGetFrameCount, BusTimeout)
			f.bus.SetResult(ReceiverAddress, RxWatchdogReset, tt.rxWatchdogResult)

			assert.False(t, f.comm.PollHardware())
			assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxWatchdogReset))
			assert.Equal(t, tt.txWatchdogExpected, f.bus.CallCount(TransmitterAddress, TxWatchdogReset))
			assert.Equal(t, int64(1), f.comm.Metrics().PollFailures)
		})
	}
}

func TestComm_PollHardwareHousekeepingCountsOnce(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	f.bus.SetResponse(ReceiverAddress, RxGetFrameCount, []byte{1, 0})
	f.bus.SetResponse(ReceiverAddress, RxGetFrame, frameBytes(1, 1, 1, []byte{1}))
	f.bus.SetResult(ReceiverAddress, RxRemoveFrame, BusNack)
	f.bus.SetResult(ReceiverAddress, RxWatchdogReset, BusNack)

	f.comm.PollHardware()

	assert.Equal(t, uint8(5), f.errors())
}

func TestComm_ErrorsCarryBusTrace(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t, WithBusName("i2c-1"))
	f.bus.SetResult(ReceiverAddress, RxGetFrameCount, BusNack)

	_, err := f.comm.GetFrameCount()

	require.Error(t, err)
	trace := GetTrace(err)
	require.NotNil(t, trace)
	assert.Equal(t, "i2c-1", trace.Bus)
	require.NotEmpty(t, trace.Trace)
	last := trace.Trace[len(trace.Trace)-1]
	assert.Equal(t, TraceRX, last.Direction)
	assert.Equal(t, "nack", last.Note)
	assert.Contains(t, trace.FormatTrace(), "0x60")
	assert.Equal(t, BusNack, BusResultOf(err))
}

func TestComm_TaskPollsUntilPaused(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	f := newCommFixture(t, WithConfig(cfg))

	require.NoError(t, f.comm.Initialize())
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, f.comm.Metrics().PollCycles, "task starts suspended")

	require.NoError(t, f.comm.StartTask())
	assert.Eventually(t, func() bool {
		return f.comm.Metrics().PollCycles >= 3
	}, time.Second, time.Millisecond)

	f.comm.Pause()
	time.Sleep(10 * time.Millisecond)
	paused := f.comm.Metrics().PollCycles
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, f.comm.Metrics().PollCycles)
}

func TestCommRecoverer_SoftReset(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)

	recoverer := NewCommRecoverer(f.comm, time.Millisecond, 2)
	require.NoError(t, recoverer.AttemptRecovery(context.Background()))

	assert.Equal(t, 1, f.bus.CallCount(TransmitterAddress, TxReset))
	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxReset))
	assert.Zero(t, f.bus.CallCount(ReceiverAddress, RxHardwareReset))
}

func TestCommRecoverer_EscalatesToRestart(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	require.NoError(t, f.comm.Initialize())
	f.bus.SetResult(TransmitterAddress, TxReset, BusNack)

	recoverer := NewCommRecoverer(f.comm, time.Millisecond, 2)
	require.NoError(t, recoverer.AttemptRecovery(context.Background()))

	assert.Equal(t, 1, f.bus.CallCount(ReceiverAddress, RxHardwareReset))
	assert.True(t, f.comm.Running())
}

func TestCommRecoverer_GivesUp(t *testing.T) {
	t.Parallel()
	f := newCommFixture(t)
	require.NoError(t, f.comm.Initialize())
	f.bus.SetResult(ReceiverAddress, RxGetFrameCount, BusTimeout)

	recoverer := NewCommRecoverer(f.comm, time.Millisecond, 2)
	err := recoverer.AttemptRecovery(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusTimeout))
	assert.GreaterOrEqual(t, f.bus.CallCount(ReceiverAddress, RxHardwareReset), 2)
}
