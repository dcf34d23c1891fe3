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
	"fmt"
	"os"

	"github.com/golang/glog"
)

// debugEnabled controls whether debug messages reach the console log.
var debugEnabled = false

func init() {
	if os.Getenv("OBC_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf logs driver-level detail. It always goes to the session log (if
// one is open) and reaches glog only when debug is enabled or glog runs
// with -v=1 or higher.
func Debugf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	writeSessionLog("DEBUG", message)
	if debugEnabled || bool(glog.V(1)) {
		glog.InfoDepth(1, "DEBUG: "+message)
	}
}

// Debugln is the Println form of Debugf.
func Debugln(args ...any) {
	message := fmt.Sprintln(args...)
	message = message[:len(message)-1]
	writeSessionLog("DEBUG", message)
	if debugEnabled || bool(glog.V(1)) {
		glog.InfoDepth(1, "DEBUG: "+message)
	}
}

// Infof logs a mission event.
func Infof(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	writeSessionLog("INFO", message)
	glog.InfoDepth(1, message)
}

// Warnf logs a degraded but recoverable condition.
func Warnf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	writeSessionLog("WARN", message)
	glog.WarningDepth(1, message)
}

// Errorf logs a failed operation.
func Errorf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	writeSessionLog("ERROR", message)
	glog.ErrorDepth(1, message)
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}
