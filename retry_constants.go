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

import "time"

// Bus retry constants control how transports are opened and how transient
// transaction failures are retried by callers.
const (
	// DefaultBusRetries is the number of attempts to open a bus.
	DefaultBusRetries = 3
	// BusInitialBackoff is the initial delay between attempts.
	BusInitialBackoff = 10 * time.Millisecond
	// BusMaxBackoff is the maximum delay between attempts.
	BusMaxBackoff = 1 * time.Second
	// BusBackoffMultiplier is the exponential backoff multiplier.
	BusBackoffMultiplier = 2.0
	// BusJitter is the random jitter factor (0.0-1.0).
	BusJitter = 0.1
	// BusRetryTimeout is the overall timeout for all attempts.
	BusRetryTimeout = 5 * time.Second
)

// Radio recovery constants bound the escalating reset sequence run when the
// radio stops answering.
const (
	// RecoveryAttempts is the number of reset rounds before giving up.
	RecoveryAttempts = 3
	// RecoveryBackoff is the delay before the second reset round.
	RecoveryBackoff = 500 * time.Millisecond
	// RecoveryMaxBackoff caps the delay between reset rounds.
	RecoveryMaxBackoff = 2 * time.Second
	// RecoveryTimeout is the overall time allowed for recovery.
	RecoveryTimeout = 10 * time.Second
)

// Downlink retry constants apply to replies sent from the frame handler.
const (
	// ReplyRetries is the number of attempts to queue a reply frame.
	ReplyRetries = 3
	// ReplyRetryDelay1 is the delay before the first retry.
	ReplyRetryDelay1 = 100 * time.Millisecond
	// ReplyRetryDelay2 is the delay before the second retry.
	ReplyRetryDelay2 = 250 * time.Millisecond
)

// Comm timing defaults.
const (
	// DefaultPollInterval is how often the comm task polls the receiver.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultStallWindow is how long the transmitter queue may drain without
	// progress before the transmitter is reset.
	DefaultStallWindow = 15 * time.Second
	// DefaultTraceDepth is the number of bus transactions kept for errors.
	DefaultTraceDepth = 16
)
