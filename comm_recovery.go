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

	"github.com/ZaparooProject/go-obc/internal/syncutil"
)

// Recoverer brings an unresponsive radio back into service.
type Recoverer interface {
	// AttemptRecovery returns nil once the radio answers again.
	AttemptRecovery(ctx context.Context) error
}

// CommRecoverer implements a tiered recovery strategy:
// 1. Soft reset of the transmitter and receiver
// 2. Hardware reset with a comm task restart
type CommRecoverer struct {
	comm        *Comm
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewCommRecoverer creates a recoverer for comm. Zero values select the
// recovery defaults.
func NewCommRecoverer(comm *Comm, backoff time.Duration, maxAttempts int) *CommRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = RecoveryAttempts
	}
	if backoff <= 0 {
		backoff = RecoveryBackoff
	}
	return &CommRecoverer{
		comm:        comm,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery runs reset rounds until the receiver answers a frame count
// query or the attempts are used up.
func (r *CommRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	config := &RetryConfig{
		MaxAttempts:       r.maxAttempts,
		InitialBackoff:    r.backoff,
		MaxBackoff:        max(r.backoff, RecoveryMaxBackoff),
		BackoffMultiplier: BusBackoffMultiplier,
		RetryTimeout:      RecoveryTimeout,
		Retryable:         func(error) bool { return true },
	}

	round := 0
	err := RetryWithConfig(ctx, config, func() error {
		round++
		return r.recoverOnce(round)
	})
	if err != nil {
		return fmt.Errorf("radio recovery failed after %d rounds: %w", round, err)
	}
	Infof("radio recovered in round %d", round)
	return nil
}

func (r *CommRecoverer) recoverOnce(round int) error {
	// Tier 1: soft reset both halves
	err := errors.Join(r.comm.ResetTransmitter(), r.comm.ResetReceiver())
	if err == nil {
		if _, err = r.comm.GetFrameCount(); err == nil {
			return nil
		}
	}
	Warnf("soft radio reset failed in round %d: %v", round, err)

	// Tier 2: hardware reset and task restart
	if err := r.comm.Restart(); err != nil {
		return err
	}
	_, err = r.comm.GetFrameCount()
	return err
}
