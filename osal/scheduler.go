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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ZaparooProject/go-obc/internal/syncutil"
)

var (
	// ErrOutOfResource is returned when the scheduler has no free task slot.
	ErrOutOfResource = errors.New("out of task resources")
	// ErrSchedulerStopped is returned when creating a task after Shutdown.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// TaskFunc is the body of a task. It should call Checkpoint between units of
// work so suspension takes effect and return once ctx is done.
type TaskFunc func(ctx context.Context, task *Task)

// Scheduler runs a fixed number of long-lived tasks. Tasks are created once
// at boot; the capacity bounds how many can exist.
type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	tasks    []*Task
	wg       sync.WaitGroup
	capacity int
	mu       syncutil.Mutex
	stopped  bool
}

// NewScheduler creates a scheduler able to host capacity tasks.
func NewScheduler(ctx context.Context, capacity int) *Scheduler {
	runCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:      runCtx,
		cancel:   cancel,
		capacity: capacity,
	}
}

// CreateTask starts fn on its own goroutine in the suspended state. Call
// Resume to let it run.
func (s *Scheduler) CreateTask(name string, fn TaskFunc) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrSchedulerStopped
	}
	if len(s.tasks) >= s.capacity {
		return nil, fmt.Errorf("create task %q: %w", name, ErrOutOfResource)
	}

	task := &Task{
		name:     name,
		resumeCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	task.suspended.Store(true)
	s.tasks = append(s.tasks, task)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(task.done)
		if err := task.Checkpoint(s.ctx); err != nil {
			return
		}
		fn(s.ctx, task)
	}()
	return task, nil
}

// Tasks returns the number of created tasks.
func (s *Scheduler) Tasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown cancels every task and waits for them to return.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Task is a handle to a scheduled goroutine.
type Task struct {
	resumeCh  chan struct{}
	done      chan struct{}
	name      string
	suspended atomic.Bool
}

// Name returns the task name given at creation.
func (t *Task) Name() string {
	return t.name
}

// Suspend asks the task to stop at its next checkpoint. It does not
// interrupt work in progress.
func (t *Task) Suspend() {
	t.suspended.Store(true)
}

// Resume lets a suspended task continue.
func (t *Task) Resume() {
	if t.suspended.CompareAndSwap(true, false) {
		select {
		case t.resumeCh <- struct{}{}:
		default:
			// A wakeup is already pending.
		}
	}
}

// Suspended reports whether the task is currently asked to be suspended.
func (t *Task) Suspended() bool {
	return t.suspended.Load()
}

// Done is closed when the task body has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Checkpoint blocks while the task is suspended. It returns ctx.Err() when
// the scheduler shuts down.
func (t *Task) Checkpoint(ctx context.Context) error {
	for t.suspended.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.resumeCh:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
