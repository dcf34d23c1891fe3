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

package osal

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-obc/internal/syncutil"
)

// EventGroup is a set of 32 flag bits that tasks can set, clear and wait on.
type EventGroup struct {
	changed chan struct{}
	mu      syncutil.Mutex
	bits    uint32
}

// NewEventGroup creates an event group with all bits cleared.
func NewEventGroup() *EventGroup {
	return &EventGroup{changed: make(chan struct{})}
}

// Set raises bits and wakes waiters.
func (e *EventGroup) Set(bits uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bits&bits == bits {
		return
	}
	e.bits |= bits
	e.notifyLocked()
}

// Clear lowers bits and wakes waiters.
func (e *EventGroup) Clear(bits uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bits&bits == 0 {
		return
	}
	e.bits &^= bits
	e.notifyLocked()
}

// Get returns the current bits.
func (e *EventGroup) Get() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bits
}

// IsSet reports whether all of bits are raised.
func (e *EventGroup) IsSet(bits uint32) bool {
	return e.Get()&bits == bits
}

// Wait blocks until all of bits are raised, the timeout elapses or ctx is
// done. It returns the bits observed last and whether the wait succeeded.
func (e *EventGroup) Wait(ctx context.Context, bits uint32, timeout time.Duration) (uint32, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		e.mu.Lock()
		current := e.bits
		changed := e.changed
		e.mu.Unlock()

		if current&bits == bits {
			return current, true
		}

		select {
		case <-changed:
		case <-timer.C:
			return e.Get(), false
		case <-ctx.Done():
			return e.Get(), false
		}
	}
}

func (e *EventGroup) notifyLocked() {
	close(e.changed)
	e.changed = make(chan struct{})
}
