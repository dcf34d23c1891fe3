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

//go:build linux

package i2c

import (
	"errors"
	"strings"

	obc "github.com/ZaparooProject/go-obc"
	"golang.org/x/sys/unix"
)

var errnoResults = []struct {
	errno  unix.Errno
	result obc.BusResult
}{
	{unix.EREMOTEIO, obc.BusNack},
	{unix.ENXIO, obc.BusNack},
	{unix.ETIMEDOUT, obc.BusTimeout},
	{unix.EAGAIN, obc.BusArbitrationLost},
	{unix.EBUSY, obc.BusBusy},
}

// classify maps an i2c-dev error to a bus result. periph formats driver
// errors with %v, so the errno text is matched when the chain is lost.
func classify(err error) obc.BusResult {
	msg := err.Error()
	for _, e := range errnoResults {
		if errors.Is(err, e.errno) || strings.Contains(msg, e.errno.Error()) {
			return e.result
		}
	}
	return obc.BusFailure
}
