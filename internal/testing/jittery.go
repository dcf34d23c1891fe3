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

// Package testing holds hardware simulators for tests and emulation: a
// virtual radio and antenna controller behind obc.Bus, and a link wrapper
// that fragments and delays reads like a USB serial bridge.
package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures a BufferedJitteryConnection.
type JitterConfig struct {
	MaxLatencyMs int
	// FragmentMinBytes is the smallest fragment returned by one Read.
	FragmentMinBytes int
	// StallAfterBytes pauses delivery once, for StallDuration, after that
	// many bytes.
	StallAfterBytes int
	StallDuration   time.Duration
	Seed            uint64
	FragmentReads   bool
	// USBBoundaryStress splits reads at 64-byte USB packet boundaries.
	USBBoundaryStress bool
}

// DefaultJitterConfig returns a mild configuration suitable for most tests.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatencyMs:     2,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// BufferedJitteryConnection wraps a link so reads arrive late and in
// pieces, as they do through FTDI or CH340 bridges. Bytes are never lost.
// It is not safe for concurrent reads.
type BufferedJitteryConnection struct {
	backend   io.ReadWriter
	rng       *rand.Rand
	pending   []byte
	config    JitterConfig
	delivered int
	stalled   bool
}

// NewBufferedJitteryConnection wraps backend. A zero Seed picks a random one.
func NewBufferedJitteryConnection(backend io.ReadWriter, config JitterConfig) *BufferedJitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test randomness
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &BufferedJitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test randomness
		pending: make([]byte, 0, 1024),
	}
}

// Write passes through unchanged.
func (j *BufferedJitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns a delayed fragment of the backend stream.
func (j *BufferedJitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatencyMs > 0 {
		if delay := time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond; delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.pending) == 0 {
		chunk := make([]byte, 1024)
		n, err := j.backend.Read(chunk)
		if n == 0 {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.pending = append(j.pending, chunk[:n]...)
	}

	n := min(len(j.pending), len(buf))
	n = j.limitForStall(n)
	if j.config.USBBoundaryStress && n > 0 {
		if untilBoundary := 64 - j.delivered%64; untilBoundary < n {
			n = untilBoundary
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.delivered += n
	return n, nil
}

func (j *BufferedJitteryConnection) limitForStall(n int) int {
	if j.config.StallAfterBytes <= 0 || j.stalled {
		return n
	}
	if j.delivered >= j.config.StallAfterBytes {
		j.stalled = true
		time.Sleep(j.config.StallDuration)
		return n
	}
	return min(n, j.config.StallAfterBytes-j.delivered)
}

// ResetStallState rearms the stall.
func (j *BufferedJitteryConnection) ResetStallState() {
	j.delivered = 0
	j.stalled = false
}

// ClearBuffer drops bytes read from the backend but not yet delivered.
func (j *BufferedJitteryConnection) ClearBuffer() {
	j.pending = j.pending[:0]
}
