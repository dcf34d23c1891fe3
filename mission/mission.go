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

// Package mission runs independently authored behaviors against one shared
// state object. Each tick refreshes the state through updates, checks it
// through verifiers, then runs every action whose condition holds.
package mission

// UpdateResult is the outcome of one state update.
type UpdateResult uint8

const (
	// UpdateOK means the update refreshed its part of the state.
	UpdateOK UpdateResult = iota
	// UpdateWarning means the update degraded but the tick may continue.
	UpdateWarning
	// UpdateFailure aborts the remaining updates for the tick.
	UpdateFailure
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateOK:
		return "ok"
	case UpdateWarning:
		return "warning"
	case UpdateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ActionDescriptor is a condition-gated behavior. Condition must not modify
// the state.
type ActionDescriptor[T any] struct {
	Condition func(state *T) bool
	Action    func(state *T)
	Name      string
}

// UpdateDescriptor refreshes part of the state on every tick.
type UpdateDescriptor[T any] struct {
	Update func(state *T) UpdateResult
	Name   string
}

// VerifyDescriptor checks a state invariant after the updates ran.
type VerifyDescriptor[T any] struct {
	Verify func(state *T) error
	Name   string
}

// DetermineActions appends to runnable every action whose condition holds,
// in registration order. All conditions are evaluated before any action
// runs. Pass runnable[:0] of a retained slice to avoid allocating per tick.
func DetermineActions[T any](state *T, actions []ActionDescriptor[T], runnable []*ActionDescriptor[T]) []*ActionDescriptor[T] {
	for i := range actions {
		if actions[i].Condition(state) {
			runnable = append(runnable, &actions[i])
		}
	}
	return runnable
}

// ExecuteActions runs the selected actions in order.
func ExecuteActions[T any](state *T, runnable []*ActionDescriptor[T]) {
	for _, action := range runnable {
		action.Action(state)
	}
}

// Update runs every update in order. A Failure stops the iteration and is
// returned; otherwise a Warning from any update is returned.
func Update[T any](state *T, updates []UpdateDescriptor[T]) UpdateResult {
	result := UpdateOK
	for i := range updates {
		switch updates[i].Update(state) {
		case UpdateFailure:
			return UpdateFailure
		case UpdateWarning:
			result = UpdateWarning
		case UpdateOK:
		}
	}
	return result
}

// Verify runs the verifiers in order and stores each outcome in results,
// which must be at least as long as verifiers. It stops at the first failed
// check; later entries are left nil.
func Verify[T any](state *T, verifiers []VerifyDescriptor[T], results []error) bool {
	clear(results)
	for i := range verifiers {
		if err := verifiers[i].Verify(state); err != nil {
			results[i] = err
			return false
		}
	}
	return true
}
