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
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-obc/osal"
)

// Metrics tracks operational counters of the comm task.
type Metrics struct {
	PollCycles      int64         // Total number of PollHardware calls
	PollFailures    int64         // Polls where the frame count query failed
	FramesHandled   int64         // Valid frames passed to the frame handler
	InvalidFrames   int64         // Frames dropped as corrupt
	StallResets     int64         // Transmitter resets after a queue stall
	BeaconResends   int64         // Periodic beacon retransmissions
	LastPollLatency time.Duration // Duration of the last poll
}

type commMetrics struct {
	pollCycles      atomic.Int64
	pollFailures    atomic.Int64
	framesHandled   atomic.Int64
	invalidFrames   atomic.Int64
	stallResets     atomic.Int64
	beaconResends   atomic.Int64
	lastPollLatency atomic.Int64 // in nanoseconds
}

// Metrics returns a snapshot of the driver counters.
func (c *Comm) Metrics() Metrics {
	return Metrics{
		PollCycles:      c.metrics.pollCycles.Load(),
		PollFailures:    c.metrics.pollFailures.Load(),
		FramesHandled:   c.metrics.framesHandled.Load(),
		InvalidFrames:   c.metrics.invalidFrames.Load(),
		StallResets:     c.metrics.stallResets.Load(),
		BeaconResends:   c.metrics.beaconResends.Load(),
		LastPollLatency: time.Duration(c.metrics.lastPollLatency.Load()),
	}
}

// run is the comm task body. It polls the receiver until the scheduler
// shuts down, parking at each checkpoint while paused.
func (c *Comm) run(ctx context.Context, task *osal.Task) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := task.Checkpoint(ctx); err != nil {
			Debugf("comm task exiting: %v", err)
			return
		}

		c.PollHardware()
		c.resendBeacon()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// activeBeacon is the beacon most recently accepted by SetBeacon.
type activeBeacon struct {
	payload  [MaxDownlinkFrameSize]byte
	size     int
	interval time.Duration
	lastSent time.Duration
}

func (c *Comm) rememberBeacon(beacon Beacon) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if beacon.Interval <= 0 {
		c.beacon = nil
		return
	}
	b := &activeBeacon{
		interval: beacon.Interval,
		lastSent: c.clock.Uptime(),
	}
	b.size = copy(b.payload[:], beacon.Payload)
	c.beacon = b
}

func (c *Comm) forgetBeacon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beacon = nil
}

// resendBeacon retransmits the active beacon once its interval has passed.
func (c *Comm) resendBeacon() {
	var payload [MaxDownlinkFrameSize]byte

	c.mu.Lock()
	b := c.beacon
	now := c.clock.Uptime()
	if b == nil || now-b.lastSent < b.interval {
		c.mu.Unlock()
		return
	}
	b.lastSent = now
	n := copy(payload[:], b.payload[:b.size])
	c.mu.Unlock()

	c.metrics.beaconResends.Add(1)
	if _, err := c.sendFrame(payload[:n]); err != nil {
		Warnf("beacon resend failed: %v", err)
	}
}

// queueMonitor watches the transmitter free-slot count for a queue that
// keeps filling without draining.
type queueMonitor struct {
	lastProgress time.Duration
	lastFree     uint8
	seen         bool
	resetIssued  bool
}

// observe records a free-slot reading and reports whether the transmitter
// should be reset. It fires at most once per stall episode.
func (m *queueMonitor) observe(free uint8, now, window time.Duration) bool {
	if !m.seen || free >= m.lastFree {
		m.seen = true
		m.lastFree = free
		m.lastProgress = now
		m.resetIssued = false
		return false
	}
	m.lastFree = free
	if m.resetIssued || now-m.lastProgress < window {
		return false
	}
	m.resetIssued = true
	return true
}

func (c *Comm) observeQueue(free uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.observe(free, c.clock.Uptime(), c.config.StallWindow)
}

func (c *Comm) forgetQueueState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = queueMonitor{}
}
