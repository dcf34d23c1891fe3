//go:build !deadlock

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

// Package syncutil holds the mutexes shared by the OBC tasks. The default
// build uses the sync package directly; build with -tags=deadlock to get
// lock-order checking from github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex is a plain sync.Mutex in the default build.
//
//nolint:gocritic // embedding exposes Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex is a plain sync.RWMutex in the default build.
//
//nolint:gocritic // embedding exposes the full RWMutex API
type RWMutex struct {
	sync.RWMutex
}

// DetectionEnabled reports whether lock-order checking is compiled in.
const DetectionEnabled = false
