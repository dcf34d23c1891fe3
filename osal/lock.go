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

import "time"

// Lock is a mutual-exclusion primitive whose acquisition is bounded in time.
// Holders must never block on another Lock while holding this one.
type Lock struct {
	sem chan struct{}
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: make(chan struct{}, 1)}
}

// TryLockFor waits up to timeout for the lock. A zero timeout polls once.
func (l *Lock) TryLockFor(timeout time.Duration) bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case l.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// Unlock releases the lock. Unlocking an unlocked Lock panics, like
// sync.Mutex.
func (l *Lock) Unlock() {
	select {
	case <-l.sem:
	default:
		panic("osal: unlock of unlocked Lock")
	}
}
