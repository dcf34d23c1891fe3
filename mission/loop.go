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

package mission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/internal/syncutil"
)

// ErrLoopRunning is returned when registering on a started loop.
var ErrLoopRunning = errors.New("mission loop already running")

// LoopMetrics tracks operational counters of a Loop.
type LoopMetrics struct {
	Ticks           int64         // Completed ticks
	UpdateWarnings  int64         // Ticks whose updates reported a warning
	UpdateFailures  int64         // Ticks aborted by an update failure
	VerifyFailures  int64         // Ticks aborted by a failed verifier
	ActionsExecuted int64         // Total actions run
	LastTickLatency time.Duration // Duration of the last tick
}

// TickResult summarises one tick.
type TickResult struct {
	VerifyErr error
	Executed  int
	Update    UpdateResult
}

// Loop owns the state object and drives the registered descriptors on a
// fixed period. Registration happens before Start; the state is only
// mutated from the loop goroutine.
type Loop[T any] struct {
	state         *T
	stopChan      chan struct{}
	actions       []ActionDescriptor[T]
	updates       []UpdateDescriptor[T]
	verifiers     []VerifyDescriptor[T]
	runnable      []*ActionDescriptor[T]
	verifyResults []error
	wg            sync.WaitGroup
	interval      time.Duration
	mu            syncutil.Mutex

	ticks           atomic.Int64
	updateWarnings  atomic.Int64
	updateFailures  atomic.Int64
	verifyFailures  atomic.Int64
	actionsExecuted atomic.Int64
	lastTickLatency atomic.Int64 // in nanoseconds
	running         atomic.Bool
}

// NewLoop creates a loop ticking every interval over state.
func NewLoop[T any](state *T, interval time.Duration) *Loop[T] {
	return &Loop[T]{
		state:    state,
		interval: interval,
		stopChan: make(chan struct{}, 1),
	}
}

// AddAction registers condition-gated actions.
func (l *Loop[T]) AddAction(actions ...ActionDescriptor[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return ErrLoopRunning
	}
	l.actions = append(l.actions, actions...)
	l.runnable = make([]*ActionDescriptor[T], 0, len(l.actions))
	return nil
}

// AddUpdate registers state updates.
func (l *Loop[T]) AddUpdate(updates ...UpdateDescriptor[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return ErrLoopRunning
	}
	l.updates = append(l.updates, updates...)
	return nil
}

// AddVerify registers state verifiers.
func (l *Loop[T]) AddVerify(verifiers ...VerifyDescriptor[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return ErrLoopRunning
	}
	l.verifiers = append(l.verifiers, verifiers...)
	l.verifyResults = make([]error, len(l.verifiers))
	return nil
}

// RunOnce performs one tick: update, verify, determine, execute. Actions
// are skipped when an update fails or a verifier rejects the state.
func (l *Loop[T]) RunOnce() TickResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	defer func() {
		l.ticks.Add(1)
		l.lastTickLatency.Store(time.Since(start).Nanoseconds())
	}()

	var result TickResult
	result.Update = Update(l.state, l.updates)
	switch result.Update {
	case UpdateFailure:
		l.updateFailures.Add(1)
		obc.Warnf("mission tick skipped: state update failed")
		return result
	case UpdateWarning:
		l.updateWarnings.Add(1)
	case UpdateOK:
	}

	if !Verify(l.state, l.verifiers, l.verifyResults) {
		l.verifyFailures.Add(1)
		for i, err := range l.verifyResults {
			if err != nil {
				result.VerifyErr = err
				obc.Warnf("mission tick skipped: %s: %v", l.verifiers[i].Name, err)
				break
			}
		}
		return result
	}

	l.runnable = DetermineActions(l.state, l.actions, l.runnable[:0])
	ExecuteActions(l.state, l.runnable)
	result.Executed = len(l.runnable)
	l.actionsExecuted.Add(int64(result.Executed))
	if glog.V(2) {
		for _, action := range l.runnable {
			obc.Debugf("mission action ran: %s", action.Name)
		}
	}
	return result
}

// Start runs ticks on a goroutine until Stop or ctx cancellation.
func (l *Loop[T]) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	select {
	case <-l.stopChan:
	default:
	}
	l.wg.Add(1)
	go l.run(ctx)
	return nil
}

// Stop halts the loop and waits for the current tick to finish.
func (l *Loop[T]) Stop() {
	if !l.running.Load() {
		return
	}
	select {
	case l.stopChan <- struct{}{}:
	default:
	}
	l.wg.Wait()
}

// Running reports whether the loop goroutine is active.
func (l *Loop[T]) Running() bool {
	return l.running.Load()
}

func (l *Loop[T]) run(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer func() {
		ticker.Stop()
		l.running.Store(false)
	}()

	l.RunOnce()
	for {
		select {
		case <-ticker.C:
			l.RunOnce()
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Metrics returns a snapshot of the loop counters.
func (l *Loop[T]) Metrics() LoopMetrics {
	return LoopMetrics{
		Ticks:           l.ticks.Load(),
		UpdateWarnings:  l.updateWarnings.Load(),
		UpdateFailures:  l.updateFailures.Load(),
		VerifyFailures:  l.verifyFailures.Load(),
		ActionsExecuted: l.actionsExecuted.Load(),
		LastTickLatency: time.Duration(l.lastTickLatency.Load()),
	}
}
