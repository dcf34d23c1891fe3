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

package telecommand

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	obc "github.com/ZaparooProject/go-obc"
)

// Status is the outcome reported in a reply frame.
type Status byte

const (
	StatusOK Status = iota
	StatusInvalidParams
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidParams:
		return "invalid parameters"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", byte(s))
	}
}

// Telecommand executes one command code.
type Telecommand interface {
	Code() byte
	// Execute runs the command and returns the reply status and data.
	Execute(params []byte) (Status, []byte)
}

// Metrics counts handled uplink frames.
type Metrics struct {
	Executed      int64
	Rejected      int64
	Unknown       int64
	ReplyFailures int64
}

// Handler dispatches decoded telecommands. It implements obc.FrameHandler.
type Handler struct {
	decoder      *Decoder
	commands     map[byte]Telecommand
	replyTimeout time.Duration
	executed     atomic.Int64
	rejected     atomic.Int64
	unknown      atomic.Int64
	replyFails   atomic.Int64
}

// NewHandler registers commands. Two commands may not share a code.
func NewHandler(decoder *Decoder, commands ...Telecommand) (*Handler, error) {
	if decoder == nil {
		return nil, errors.New("decoder cannot be nil")
	}
	h := &Handler{
		decoder:      decoder,
		commands:     make(map[byte]Telecommand, len(commands)),
		replyTimeout: obc.BusRetryTimeout,
	}
	for _, cmd := range commands {
		if _, dup := h.commands[cmd.Code()]; dup {
			return nil, fmt.Errorf("duplicate telecommand code 0x%02X", cmd.Code())
		}
		h.commands[cmd.Code()] = cmd
	}
	return h, nil
}

// HandleFrame implements obc.FrameHandler.
func (h *Handler) HandleFrame(tx obc.Transmitter, frame obc.Frame) {
	cmd, err := h.decoder.Decode(frame.Payload())
	if err != nil {
		h.rejected.Add(1)
		obc.Warnf("uplink frame rejected: %v", err)
		return
	}

	tc, ok := h.commands[cmd.Code]
	if !ok {
		h.unknown.Add(1)
		obc.Warnf("unknown telecommand 0x%02X", cmd.Code)
		return
	}

	status, data := tc.Execute(cmd.Params)
	h.executed.Add(1)
	obc.Infof("telecommand 0x%02X: %s", cmd.Code, status)

	reply := make([]byte, 0, 2+len(data))
	reply = append(reply, cmd.Code, byte(status))
	reply = append(reply, data...)

	ctx, cancel := context.WithTimeout(context.Background(), h.replyTimeout)
	defer cancel()
	if err := obc.SendFrameWithRetry(ctx, tx, reply, obc.ReplyRetries); err != nil {
		h.replyFails.Add(1)
		obc.Errorf("telecommand 0x%02X reply not sent: %v", cmd.Code, err)
	}
}

// Metrics returns the handler counters.
func (h *Handler) Metrics() Metrics {
	return Metrics{
		Executed:      h.executed.Load(),
		Rejected:      h.rejected.Load(),
		Unknown:       h.unknown.Load(),
		ReplyFailures: h.replyFails.Load(),
	}
}
