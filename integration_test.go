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

package obc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/errcount"
	virt "github.com/ZaparooProject/go-obc/internal/testing"
	"github.com/ZaparooProject/go-obc/osal"
)

// radioBench wires a Comm to a simulated radio reachable over a primary
// and a fallback bus.
type radioBench struct {
	comm     *obc.Comm
	radio    *virt.VirtualRadio
	primary  *virt.Bench
	counters *errcount.Counting
	clock    *osal.ManualClock
}

func newRadioBench(t *testing.T) *radioBench {
	t.Helper()

	clock := osal.NewManualClock(0)
	radio := virt.NewVirtualRadio(clock)
	primary := virt.NewBench()
	primary.Attach(radio, obc.ReceiverAddress, obc.TransmitterAddress)
	fallback := virt.NewBench()
	fallback.Attach(radio, obc.ReceiverAddress, obc.TransmitterAddress)

	counters := errcount.New()
	comm, err := obc.New(obc.NewFallbackBus(primary, fallback), counters.Counter(errcount.DeviceComm),
		obc.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = comm.Close() })

	return &radioBench{comm: comm, radio: radio, primary: primary, counters: counters, clock: clock}
}

func TestIntegration_EchoOverFallbackBus(t *testing.T) {
	t.Parallel()

	b := newRadioBench(t)
	b.comm.SetFrameHandler(obc.FrameHandlerFunc(func(tx obc.Transmitter, f obc.Frame) {
		_ = tx.SendFrame(f.Payload())
	}))

	require.True(t, b.radio.QueueUplink([]byte("ping 1"), 10, 20))
	assert.True(t, b.comm.PollHardware())

	// the primary path to the radio breaks
	b.primary.Detach(obc.ReceiverAddress)
	b.primary.Detach(obc.TransmitterAddress)

	require.True(t, b.radio.QueueUplink([]byte("ping 2"), 10, 20))
	assert.True(t, b.comm.PollHardware())

	assert.Equal(t, [][]byte{[]byte("ping 1"), []byte("ping 2")}, b.radio.Transmitted())
	assert.Zero(t, b.counters.Current(errcount.DeviceComm))
}

func TestIntegration_TaskServicesUplinks(t *testing.T) {
	t.Parallel()

	b := newRadioBench(t)
	received := make(chan []byte, 4)
	b.comm.SetFrameHandler(obc.FrameHandlerFunc(func(_ obc.Transmitter, f obc.Frame) {
		received <- append([]byte(nil), f.Payload()...)
	}))

	require.NoError(t, b.comm.Initialize())
	require.NoError(t, b.comm.StartTask())

	for _, p := range []string{"a", "b", "c"} {
		require.True(t, b.radio.QueueUplink([]byte(p), 0, 0))
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-received:
			assert.Equal(t, want, string(got))
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %q not delivered", want)
		}
	}
	assert.Eventually(t, func() bool { return b.radio.PendingUplinks() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestIntegration_StalledTransmitterIsReset(t *testing.T) {
	t.Parallel()

	b := newRadioBench(t)
	b.radio.SetJammed(true)

	require.NoError(t, b.comm.SendFrame([]byte{1}))
	b.clock.Advance(obc.DefaultStallWindow / 2)
	require.NoError(t, b.comm.SendFrame([]byte{2}))
	b.clock.Advance(obc.DefaultStallWindow)
	require.NoError(t, b.comm.SendFrame([]byte{3}))

	assert.Equal(t, 1, b.radio.Commands(obc.TransmitterAddress, obc.TxReset))
	assert.Equal(t, obc.TransmitterQueueSize, b.radio.FreeSlots())
	assert.Equal(t, int64(1), b.comm.Metrics().StallResets)
}

func TestIntegration_RecovererRestoresRadio(t *testing.T) {
	t.Parallel()

	b := newRadioBench(t)
	require.NoError(t, b.comm.Initialize())
	b.radio.InjectFailure(obc.TransmitterAddress, obc.TxReset, obc.BusTimeout, 2)

	recoverer := obc.NewCommRecoverer(b.comm, time.Millisecond, 3)
	require.NoError(t, recoverer.AttemptRecovery(context.Background()))
	assert.Equal(t, 1, b.radio.Commands(obc.ReceiverAddress, obc.RxHardwareReset))
	assert.True(t, b.comm.Running())
}
