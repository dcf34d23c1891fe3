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
	"fmt"
	"time"
)

// SendFrameWithRetry queues a downlink frame, retrying while the transmitter
// rejects it or the bus reports a transient failure. Replies to telecommands
// go through here so a briefly full transmitter queue does not drop them.
func SendFrameWithRetry(ctx context.Context, tx Transmitter, payload []byte, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = ReplyRetries
	}

	retryDelays := []time.Duration{
		ReplyRetryDelay1,
		ReplyRetryDelay2,
	}

	var lastErr error
	for i := range maxRetries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := tx.SendFrame(payload)
		if err == nil {
			if i > 0 {
				Debugf("downlink frame queued on attempt %d", i+1)
			}
			return nil
		}

		lastErr = err
		if !IsRetryable(err) {
			Debugf("downlink frame failed with non-retryable error: %v", err)
			return err
		}
		if i >= maxRetries-1 {
			break
		}

		Debugf("downlink frame attempt %d failed (retrying): %v", i+1, err)

		delay := retryDelays[len(retryDelays)-1]
		if i < len(retryDelays) {
			delay = retryDelays[i]
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed to send downlink frame after %d attempts: %w", maxRetries, lastErr)
}
