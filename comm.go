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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/internal/syncutil"
	"github.com/ZaparooProject/go-obc/osal"
)

// eventTaskRunning is set in the comm event group while the task is resumed.
const eventTaskRunning uint32 = 1 << 2

// Transmitter queues downlink frames.
type Transmitter interface {
	SendFrame(payload []byte) error
}

// FrameHandler consumes valid uplink frames. It runs on the comm task and
// may reply through tx; the frame payload is only valid during the call.
type FrameHandler interface {
	HandleFrame(tx Transmitter, frame Frame)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(tx Transmitter, frame Frame)

// HandleFrame calls f.
func (f FrameHandlerFunc) HandleFrame(tx Transmitter, frame Frame) {
	f(tx, frame)
}

// Config contains configuration options for Comm
type Config struct {
	// PollInterval is the delay between receiver polls on the comm task
	PollInterval time.Duration
	// StallWindow is how long a draining transmitter queue may go without
	// progress before the transmitter is reset
	StallWindow time.Duration
	// TraceDepth is the number of bus transactions attached to errors
	TraceDepth int
}

// DefaultConfig returns default comm configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval: DefaultPollInterval,
		StallWindow:  DefaultStallWindow,
		TraceDepth:   DefaultTraceDepth,
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.StallWindow <= 0 {
		return fmt.Errorf("stall window must be positive, got %v", c.StallWindow)
	}
	if c.TraceDepth < 0 {
		return fmt.Errorf("trace depth must not be negative, got %d", c.TraceDepth)
	}
	return nil
}

// Option configures a Comm.
type Option func(*Comm) error

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Comm) error {
		if cfg == nil {
			return errors.New("nil comm config")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.config = cfg
		return nil
	}
}

// WithClock sets the clock used for stall detection and beacon resends.
func WithClock(clock osal.Clock) Option {
	return func(c *Comm) error {
		c.clock = clock
		return nil
	}
}

// WithScheduler hosts the comm task on a shared scheduler. Without it Comm
// creates a private single-slot scheduler.
func WithScheduler(s *osal.Scheduler) Option {
	return func(c *Comm) error {
		c.scheduler = s
		return nil
	}
}

// WithFrameHandler sets the handler for received frames.
func WithFrameHandler(h FrameHandler) Option {
	return func(c *Comm) error {
		c.handler = h
		return nil
	}
}

// WithBusName labels bus traces attached to errors.
func WithBusName(name string) Option {
	return func(c *Comm) error {
		c.busName = name
		return nil
	}
}

// Comm drives the receiver and transmitter halves of the radio over a Bus.
//
// Thread Safety: all methods are safe for concurrent use. Bus transactions
// are serialized, so a telecommand reply sent from the frame handler and a
// beacon update from a mission task never interleave on the wire.
type Comm struct {
	bus       Bus
	clock     osal.Clock
	handler   FrameHandler
	scheduler *osal.Scheduler
	events    *osal.EventGroup
	task      *osal.Task
	config    *Config
	trace     *TraceBuffer
	beacon    *activeBeacon
	busName   string
	counter   errcount.Counter
	queue     queueMonitor
	metrics   commMetrics

	// busMu serializes bus transactions and trace recording.
	busMu syncutil.Mutex
	// mu guards handler, queue, beacon and the last frame metadata.
	mu syncutil.Mutex
	// lifecycleMu guards task, events and closed.
	lifecycleMu syncutil.Mutex

	lastDoppler   uint16
	lastRSSI      uint16
	ownsScheduler bool
	closed        bool
}

// New creates a radio driver on bus. Failed operations are reported to
// counter.
func New(bus Bus, counter errcount.Counter, opts ...Option) (*Comm, error) {
	if bus == nil {
		return nil, errors.New("nil bus")
	}
	c := &Comm{
		bus:     bus,
		counter: counter,
		clock:   osal.NewSystemClock(),
		config:  DefaultConfig(),
		busName: "radio",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.scheduler == nil {
		c.scheduler = osal.NewScheduler(context.Background(), 1)
		c.ownsScheduler = true
	}
	c.trace = NewTraceBuffer(c.busName, c.config.TraceDepth)
	return c, nil
}

// SetFrameHandler replaces the handler for received frames.
func (c *Comm) SetFrameHandler(h FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Comm) frameHandler() FrameHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// Initialize creates the comm task in the suspended state. It does not
// touch the radio.
func (c *Comm) Initialize() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.task != nil {
		return ErrAlreadyInitialized
	}

	events := osal.NewEventGroup()
	task, err := c.scheduler.CreateTask("comm", c.run)
	if err != nil {
		c.counter.Failure()
		return fmt.Errorf("failed to create comm task: %w", err)
	}
	c.events = events
	c.task = task
	Debugf("comm task created")
	return nil
}

// StartTask resumes the comm task.
func (c *Comm) StartTask() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.task == nil {
		return ErrNotInitialized
	}
	if c.events.IsSet(eventTaskRunning) {
		return ErrTaskAlreadyRunning
	}
	c.events.Set(eventTaskRunning)
	c.task.Resume()
	Debugf("comm task started")
	return nil
}

// Pause suspends the comm task at its next checkpoint. It is a no-op when
// the task was never created.
func (c *Comm) Pause() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.task == nil {
		return
	}
	c.task.Suspend()
	c.events.Clear(eventTaskRunning)
}

// Running reports whether the comm task is resumed.
func (c *Comm) Running() bool {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.events != nil && c.events.IsSet(eventTaskRunning)
}

// Restart pauses the task, hardware-resets the radio and resumes the task.
// The task is resumed even when the reset fails.
func (c *Comm) Restart() error {
	c.Pause()
	resetErr := c.Reset()
	startErr := c.StartTask()
	return errors.Join(resetErr, startErr)
}

// Close stops the comm task. A private scheduler is shut down with it.
func (c *Comm) Close() error {
	c.Pause()

	c.lifecycleMu.Lock()
	if c.closed {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.closed = true
	c.lifecycleMu.Unlock()

	if c.ownsScheduler {
		c.scheduler.Shutdown()
	}
	return nil
}

// Reset hardware-resets the whole radio through the receiver.
func (c *Comm) Reset() error {
	err := c.command("hardware reset", ReceiverAddress, RxHardwareReset)
	if err == nil {
		c.forgetQueueState()
	}
	return c.track(err)
}

// ResetTransmitter soft-resets the transmitter.
func (c *Comm) ResetTransmitter() error {
	err := c.command("reset transmitter", TransmitterAddress, TxReset)
	if err == nil {
		c.forgetQueueState()
	}
	return c.track(err)
}

// ResetReceiver soft-resets the receiver.
func (c *Comm) ResetReceiver() error {
	return c.track(c.command("reset receiver", ReceiverAddress, RxReset))
}

// ResetWatchdogReceiver kicks the receiver watchdog.
func (c *Comm) ResetWatchdogReceiver() error {
	return c.track(c.command("reset receiver watchdog", ReceiverAddress, RxWatchdogReset))
}

// ResetWatchdogTransmitter kicks the transmitter watchdog.
func (c *Comm) ResetWatchdogTransmitter() error {
	return c.track(c.command("reset transmitter watchdog", TransmitterAddress, TxWatchdogReset))
}

// SendFrame queues payload for downlink.
func (c *Comm) SendFrame(payload []byte) error {
	if len(payload) > MaxDownlinkFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	_, err := c.sendFrame(payload)
	return err
}

// sendFrame queues payload and returns the free slot count reported by
// the transmitter.
func (c *Comm) sendFrame(payload []byte) (uint8, error) {
	var request [1 + MaxDownlinkFrameSize]byte
	request[0] = TxSendFrame
	n := copy(request[1:], payload)

	var free [1]byte
	err := c.query("send frame", TransmitterAddress, request[:1+n], free[:])
	if err == nil && free[0] == FreeSlotsRejected {
		err = c.wrapTraced(ErrFrameRejected)
	}
	if c.track(err) != nil {
		return 0, err
	}

	if c.observeQueue(free[0]) {
		c.metrics.stallResets.Add(1)
		Warnf("transmitter queue stalled at %d free slots, resetting transmitter", free[0])
		if resetErr := c.ResetTransmitter(); resetErr != nil {
			Errorf("transmitter reset after stall failed: %v", resetErr)
		}
	}
	return free[0], nil
}

// SetBeacon queues the beacon payload and remembers it for periodic resend.
// BeaconIndeterminate means the beacon was queued behind earlier frames.
func (c *Comm) SetBeacon(beacon Beacon) (BeaconResult, error) {
	if len(beacon.Payload) > MaxDownlinkFrameSize {
		return BeaconFailed, fmt.Errorf("%w: beacon of %d bytes", ErrFrameTooLarge, len(beacon.Payload))
	}

	free, err := c.sendFrame(beacon.Payload)
	if err != nil {
		return BeaconFailed, err
	}
	c.rememberBeacon(beacon)

	if free >= TransmitterQueueSize-1 {
		return BeaconSet, nil
	}
	Debugf("beacon queued behind %d frames", TransmitterQueueSize-1-int(free))
	return BeaconIndeterminate, nil
}

// ClearBeacon stops the active beacon.
func (c *Comm) ClearBeacon() error {
	c.forgetBeacon()
	return c.track(c.command("clear beacon", TransmitterAddress, TxClearBeacon))
}

// SetTransmitterStateWhenIdle selects whether the transmitter keeps the
// carrier on between frames.
func (c *Comm) SetTransmitterStateWhenIdle(state IdleState) error {
	request := [2]byte{TxSetIdleState, byte(state)}
	return c.track(c.write("set idle state", TransmitterAddress, request[:]))
}

// SetTransmitterBitRate selects the downlink bit rate.
func (c *Comm) SetTransmitterBitRate(rate Bitrate) error {
	if !rate.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidBitrate, uint8(rate))
	}
	request := [2]byte{TxSetBitrate, byte(rate)}
	return c.track(c.write("set bitrate", TransmitterAddress, request[:]))
}

// track reports the outcome of one public operation to the error counter.
func (c *Comm) track(err error) error {
	c.counter.Record(err == nil)
	return err
}

func (c *Comm) command(op string, address, opcode byte) error {
	c.busMu.Lock()
	defer c.busMu.Unlock()

	c.trace.RecordTX(address, []byte{opcode}, op)
	return c.finishLocked(op, address, WriteCommand(c.bus, address, opcode), nil)
}

func (c *Comm) write(op string, address byte, request []byte) error {
	c.busMu.Lock()
	defer c.busMu.Unlock()

	c.trace.RecordTX(address, request, op)
	result := c.bus.Write(address, request)
	return c.finishLocked(op, address, result, nil)
}

func (c *Comm) query(op string, address byte, request, response []byte) error {
	c.busMu.Lock()
	defer c.busMu.Unlock()

	c.trace.RecordTX(address, request, op)
	result := c.bus.WriteRead(address, request, response)
	return c.finishLocked(op, address, result, response)
}

func (c *Comm) finishLocked(op string, address byte, result BusResult, response []byte) error {
	if !result.OK() {
		c.trace.RecordRX(address, nil, result.String())
		err := c.trace.WrapError(NewBusError(op, address, result))
		Debugf("%s at 0x%02X failed: %v", op, address, result)
		return err
	}
	if len(response) > 0 {
		c.trace.RecordRX(address, response, "")
	}
	return nil
}

func (c *Comm) wrapTraced(err error) error {
	c.busMu.Lock()
	defer c.busMu.Unlock()
	return c.trace.WrapError(err)
}
