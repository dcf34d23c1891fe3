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
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ReceiveFrame reads the oldest pending uplink frame into buffer. The frame
// is not removed from the receiver queue; call RemoveFrame afterwards. A
// buffer shorter than the frame yields a frame whose Size is less than its
// FullSize.
func (c *Comm) ReceiveFrame(buffer []byte) (Frame, error) {
	if len(buffer) < frameLengthSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(buffer))
	}
	frame, err := c.receiveFrame(buffer)
	return frame, c.track(err)
}

func (c *Comm) receiveFrame(buffer []byte) (Frame, error) {
	request := [1]byte{RxGetFrame}
	if err := c.query("get frame size", ReceiverAddress, request[:], buffer[:frameLengthSize]); err != nil {
		return Frame{}, err
	}

	fullSize := int(binary.LittleEndian.Uint16(buffer[:frameLengthSize]))
	if fullSize > MaxUplinkFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameOutOfRange, fullSize)
	}

	length := min(len(buffer), FrameHeaderSize+fullSize)
	if err := c.query("get frame", ReceiverAddress, request[:], buffer[:length]); err != nil {
		return Frame{}, err
	}

	frame := parseFrame(buffer[:length])
	if frame.Verify() {
		c.mu.Lock()
		c.lastDoppler = frame.Doppler()
		c.lastRSSI = frame.RSSI()
		c.mu.Unlock()
	}
	return frame, nil
}

// RemoveFrame drops the oldest frame from the receiver queue.
func (c *Comm) RemoveFrame() error {
	return c.track(c.command("remove frame", ReceiverAddress, RxRemoveFrame))
}

// GetFrameCount returns the number of frames waiting in the receiver.
func (c *Comm) GetFrameCount() (int, error) {
	count, err := c.frameCount()
	return count, c.track(err)
}

func (c *Comm) frameCount() (int, error) {
	request := [1]byte{RxGetFrameCount}
	var response [2]byte
	if err := c.query("get frame count", ReceiverAddress, request[:], response[:]); err != nil {
		return 0, err
	}
	count := int(binary.LittleEndian.Uint16(response[:]))
	if count > MaxFrameCount {
		return 0, fmt.Errorf("%w: %d", ErrFrameCountOutOfRange, count)
	}
	return count, nil
}

// PollHardware runs one receiver service cycle: count pending frames,
// dispatch the oldest one and keep the watchdogs fed. It reports whether a
// frame was taken off the receiver queue.
func (c *Comm) PollHardware() bool {
	start := time.Now()
	defer func() {
		c.metrics.pollCycles.Add(1)
		c.metrics.lastPollLatency.Store(time.Since(start).Nanoseconds())
	}()

	count, err := c.GetFrameCount()
	if err != nil {
		c.metrics.pollFailures.Add(1)
		Warnf("receiver frame count failed: %v", err)
		if wdErr := c.ResetWatchdogReceiver(); wdErr != nil {
			Errorf("receiver watchdog reset failed: %v", wdErr)
			if txErr := c.ResetWatchdogTransmitter(); txErr != nil {
				Errorf("transmitter watchdog reset failed: %v", txErr)
			}
		}
		return false
	}

	if count == 0 {
		_ = c.track(c.command("reset receiver watchdog", ReceiverAddress, RxWatchdogReset))
		return false
	}

	c.processFrame()

	removeErr := c.command("remove frame", ReceiverAddress, RxRemoveFrame)
	watchdogErr := c.command("reset receiver watchdog", ReceiverAddress, RxWatchdogReset)
	if err := c.track(errors.Join(removeErr, watchdogErr)); err != nil {
		Warnf("receiver housekeeping failed: %v", err)
	}
	return true
}

func (c *Comm) processFrame() {
	var buffer [PreferredBufferSize]byte
	frame, err := c.ReceiveFrame(buffer[:])
	if err != nil {
		Warnf("failed to receive frame: %v", err)
		return
	}
	if !frame.Verify() {
		c.metrics.invalidFrames.Add(1)
		Warnf("dropping corrupt frame of %d bytes", frame.FullSize())
		return
	}

	handler := c.frameHandler()
	if handler == nil {
		Debugf("no frame handler, dropping %d byte frame", frame.Size())
		return
	}
	c.metrics.framesHandled.Add(1)
	handler.HandleFrame(c, frame)
}
