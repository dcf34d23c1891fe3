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

// Package osal provides the small set of operating-system services the OBC
// tasks rely on: a monotonic mission clock, event groups, bounded-wait locks
// and a fixed-capacity task scheduler with cooperative suspension.
package osal

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic time source measured from boot.
type Clock interface {
	Uptime() time.Duration
}

// SystemClock measures uptime from its creation using the runtime's
// monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Uptime implements Clock.
func (c *SystemClock) Uptime() time.Duration {
	return time.Since(c.start)
}

// ManualClock is a Clock driven explicitly by its owner. It is safe for
// concurrent use.
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock creates a clock reading the given uptime.
func NewManualClock(uptime time.Duration) *ManualClock {
	c := &ManualClock{}
	c.now.Store(int64(uptime))
	return c
}

// Uptime implements Clock.
func (c *ManualClock) Uptime() time.Duration {
	return time.Duration(c.now.Load())
}

// Set moves the clock to an absolute uptime.
func (c *ManualClock) Set(uptime time.Duration) {
	c.now.Store(int64(uptime))
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}
