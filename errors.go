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
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error categories
var (
	// Bus errors - potentially retryable
	ErrBusNack            = errors.New("bus transaction not acknowledged")
	ErrBusTimeout         = errors.New("bus transaction timed out")
	ErrBusFailure         = errors.New("bus transaction failed")
	ErrBusClockLatched    = errors.New("bus clock latched low")
	ErrBusArbitrationLost = errors.New("bus arbitration lost")
	ErrBusBusy            = errors.New("bus busy")

	// Precondition errors - rejected before touching hardware
	ErrFrameTooLarge  = errors.New("frame exceeds maximum downlink size")
	ErrInvalidBitrate = errors.New("invalid transmitter bitrate")
	ErrBufferTooSmall = errors.New("buffer too small for frame header")

	// Malformed responses - the hardware answered with an implausible value
	ErrFrameCountOutOfRange = errors.New("frame count out of range")
	ErrFrameOutOfRange      = errors.New("frame size out of range")
	ErrFrameRejected        = errors.New("transmitter rejected frame")

	// Lifecycle errors
	ErrNotInitialized     = errors.New("comm not initialized")
	ErrAlreadyInitialized = errors.New("comm already initialized")
	ErrTaskAlreadyRunning = errors.New("comm task already running")
	ErrClosed             = errors.New("comm closed")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates the device did not answer in time
	ErrorTypeTimeout
)

// BusError wraps a failed bus transaction with the operation and address.
type BusError struct {
	Err       error
	Op        string
	Type      ErrorType
	Result    BusResult
	Address   byte
	Retryable bool
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s @0x%02X: %v", e.Op, e.Address, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// NewBusError builds the error for a non-OK bus result.
func NewBusError(op string, address byte, result BusResult) *BusError {
	errType := ErrorTypeTransient
	switch result {
	case BusTimeout:
		errType = ErrorTypeTimeout
	case BusClockLatched:
		errType = ErrorTypePermanent
	case BusOK, BusNack, BusFailure, BusArbitrationLost, BusBusy:
	}
	return &BusError{
		Op:        op,
		Address:   address,
		Result:    result,
		Err:       result.Err(),
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var be *BusError
	if errors.As(err, &be) {
		return be.Retryable
	}

	switch {
	case errors.Is(err, ErrBusNack),
		errors.Is(err, ErrBusTimeout),
		errors.Is(err, ErrBusFailure),
		errors.Is(err, ErrBusArbitrationLost),
		errors.Is(err, ErrBusBusy),
		errors.Is(err, ErrFrameRejected):
		return true
	default:
		return false
	}
}

// IsBusFailure reports whether err came from the bus rather than from a
// precondition or a malformed answer.
func IsBusFailure(err error) bool {
	var be *BusError
	return errors.As(err, &be)
}

// BusResultOf extracts the bus result carried by err, or BusOK if none.
func BusResultOf(err error) BusResult {
	var be *BusError
	if errors.As(err, &be) {
		return be.Result
	}
	return BusOK
}

// =============================================================================
// Wire Trace Logging
// =============================================================================
// TraceableError embeds the last bus transactions in errors so a failing
// operation can be diagnosed from the mission log alone.

// TraceDirection indicates the direction of bus data
type TraceDirection string

const (
	// TraceTX indicates data written to the radio
	TraceTX TraceDirection = "TX"
	// TraceRX indicates data read from the radio
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single bus transfer
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
	Address   byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := formatHexBytes(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s @0x%02X: %s (%s)",
			e.Timestamp.Format("15:04:05.000"), e.Direction, e.Address, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s @0x%02X: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, e.Address, hexData)
}

// TraceableError wraps an error with the bus trace that led to it:
//
//	var te *obc.TraceableError
//	if errors.As(err, &te) {
//	    obc.Warnf("bus trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err   error
	Bus   string
	Trace []TraceEntry
}

// Error implements the error interface
func (e *TraceableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s] (no trace data)", e.Bus)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s] Bus trace (%d entries):\n", e.Bus, len(e.Trace))
	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		hexData := formatHexBytes(entry.Data)
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s 0x%02X %s (%s)\n", direction, entry.Address, hexData, entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s 0x%02X %s\n", direction, entry.Address, hexData)
		}
	}
	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	shown := data
	if len(shown) > 32 {
		shown = shown[:32]
	}
	parts := make([]string, len(shown))
	for i, b := range shown {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	if len(data) > len(shown) {
		return strings.Join(parts, " ") + fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return strings.Join(parts, " ")
}

// TraceBuffer keeps the most recent bus transfers in a fixed-size ring.
// It is not safe for concurrent use; the comm driver guards it with its bus
// lock.
type TraceBuffer struct {
	bus     string
	entries []TraceEntry
	maxSize int
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(bus string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries: make([]TraceEntry, 0, maxSize),
		maxSize: maxSize,
		bus:     bus,
	}
}

// RecordTX records data written to an address
func (tb *TraceBuffer) RecordTX(address byte, data []byte, note string) {
	tb.record(TraceTX, address, data, note)
}

// RecordRX records data read from an address
func (tb *TraceBuffer) RecordRX(address byte, data []byte, note string) {
	tb.record(TraceRX, address, data, note)
}

func (tb *TraceBuffer) record(dir TraceDirection, address byte, data []byte, note string) {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	entry := TraceEntry{
		Direction: dir,
		Address:   address,
		Data:      dataCopy,
		Timestamp: time.Now(),
		Note:      note,
	}

	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
	} else {
		tb.entries = append(tb.entries, entry)
	}
}

// Entries returns a copy of the recorded transfers, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	out := make([]TraceEntry, len(tb.entries))
	copy(out, tb.entries)
	return out
}

// WrapError wraps an error with the collected trace data.
// Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:   err,
		Trace: tb.Entries(),
		Bus:   tb.bus,
	}
}

// Clear resets the trace buffer
func (tb *TraceBuffer) Clear() {
	tb.entries = tb.entries[:0]
}

// HasTrace checks if an error contains trace data
func HasTrace(err error) bool {
	var te *TraceableError
	return errors.As(err, &te)
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
