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
	"sync"
	"time"
)

// BusOp identifies the shape of a recorded transaction.
type BusOp uint8

const (
	// BusOpWrite is a plain write.
	BusOpWrite BusOp = iota
	// BusOpRead is a plain read.
	BusOpRead
	// BusOpWriteRead is a write followed by a repeated-start read.
	BusOpWriteRead
)

// BusCall is one transaction observed by MockBus.
type BusCall struct {
	Request     []byte
	ResponseLen int
	Op          BusOp
	Address     byte
}

// Opcode returns the first request byte, or 0 for a bare read.
func (c BusCall) Opcode() byte {
	if len(c.Request) == 0 {
		return 0
	}
	return c.Request[0]
}

// BusHandler computes a scripted answer. response is already zeroed.
type BusHandler func(request, response []byte) BusResult

type mockKey struct {
	address byte
	opcode  byte
}

// MockBus provides a scriptable Bus for testing. Transactions are keyed by
// address and opcode (the first request byte; plain reads reuse the last
// opcode written to that address). Unscripted transactions succeed with a
// zero-filled response.
type MockBus struct {
	responses  map[mockKey][]byte
	results    map[mockKey]BusResult
	handlers   map[mockKey]BusHandler
	callCount  map[mockKey]int
	lastOpcode map[byte]byte
	calls      []BusCall
	delay      time.Duration
	mu         sync.RWMutex
}

// NewMockBus creates a new mock bus
func NewMockBus() *MockBus {
	return &MockBus{
		responses:  make(map[mockKey][]byte),
		results:    make(map[mockKey]BusResult),
		handlers:   make(map[mockKey]BusHandler),
		callCount:  make(map[mockKey]int),
		lastOpcode: make(map[byte]byte),
	}
}

// Write implements Bus.
func (m *MockBus) Write(address byte, data []byte) BusResult {
	return m.transact(BusOpWrite, address, data, nil)
}

// Read implements Bus.
func (m *MockBus) Read(address byte, buf []byte) BusResult {
	return m.transact(BusOpRead, address, nil, buf)
}

// WriteRead implements Bus.
func (m *MockBus) WriteRead(address byte, request, response []byte) BusResult {
	return m.transact(BusOpWriteRead, address, request, response)
}

func (m *MockBus) transact(op BusOp, address byte, request, response []byte) BusResult {
	m.mu.RLock()
	delay := m.delay
	m.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	reqCopy := make([]byte, len(request))
	copy(reqCopy, request)
	m.calls = append(m.calls, BusCall{Op: op, Address: address, Request: reqCopy, ResponseLen: len(response)})

	var opcode byte
	if op == BusOpRead {
		opcode = m.lastOpcode[address]
	} else if len(request) > 0 {
		opcode = request[0]
		m.lastOpcode[address] = opcode
	}
	key := mockKey{address: address, opcode: opcode}
	m.callCount[key]++
	handler := m.handlers[key]
	result, hasResult := m.results[key]
	canned := m.responses[key]
	m.mu.Unlock()

	clear(response)
	if handler != nil {
		return handler(request, response)
	}
	copy(response, canned)
	if hasResult {
		return result
	}
	return BusOK
}

// Test helper methods

// SetResponse configures the bytes returned for an opcode
func (m *MockBus) SetResponse(address, opcode byte, response []byte) {
	m.mu.Lock()
	m.responses[mockKey{address, opcode}] = append([]byte(nil), response...)
	m.mu.Unlock()
}

// SetResult configures the result returned for an opcode
func (m *MockBus) SetResult(address, opcode byte, result BusResult) {
	m.mu.Lock()
	m.results[mockKey{address, opcode}] = result
	m.mu.Unlock()
}

// ClearResult removes result injection for an opcode
func (m *MockBus) ClearResult(address, opcode byte) {
	m.mu.Lock()
	delete(m.results, mockKey{address, opcode})
	m.mu.Unlock()
}

// SetHandler installs a handler that takes precedence over canned data
func (m *MockBus) SetHandler(address, opcode byte, handler BusHandler) {
	m.mu.Lock()
	m.handlers[mockKey{address, opcode}] = handler
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate bus latency
func (m *MockBus) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// CallCount returns how many transactions used an opcode
func (m *MockBus) CallCount(address, opcode byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[mockKey{address, opcode}]
}

// TotalCalls returns the number of transactions of any kind
func (m *MockBus) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// Calls returns the recorded transactions in order
func (m *MockBus) Calls() []BusCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BusCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears the call log while keeping scripted behavior
func (m *MockBus) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.callCount = make(map[mockKey]int)
	m.mu.Unlock()
}

var _ Bus = (*MockBus)(nil)
