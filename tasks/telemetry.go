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

package tasks

import (
	"errors"
	"fmt"
	"io"
	"time"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/errcount"
	"github.com/ZaparooProject/go-obc/fs"
	"github.com/ZaparooProject/go-obc/mission"
	"github.com/ZaparooProject/go-obc/state"
)

// Telemetry persistence defaults.
const (
	DefaultTelemetryCurrentFile  = "/telemetry.current"
	DefaultTelemetryPreviousFile = "/telemetry.previous"
	DefaultTelemetryMaxFileSize  = 512 * 1024
	DefaultTelemetryDelay        = 30 * time.Second
)

// TelemetryConfig controls where and how often telemetry is archived.
type TelemetryConfig struct {
	CurrentFile  string
	PreviousFile string
	// MaxFileSize is the size at which the current file is rotated.
	MaxFileSize int64
	Delay       time.Duration
}

// DefaultTelemetryConfig returns the flight configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		CurrentFile:  DefaultTelemetryCurrentFile,
		PreviousFile: DefaultTelemetryPreviousFile,
		MaxFileSize:  DefaultTelemetryMaxFileSize,
		Delay:        DefaultTelemetryDelay,
	}
}

// TelemetryTask appends the serialized telemetry to the current archive
// file, rotating it to the previous file when it grows too large.
type TelemetryTask struct {
	fs          fs.FileSystem
	storage     errcount.Counter
	config      TelemetryConfig
	lockTimeout time.Duration
	last        time.Duration
}

// NewTelemetryTask creates the persistence task.
func NewTelemetryTask(fsys fs.FileSystem, storage errcount.Counter, config TelemetryConfig) *TelemetryTask {
	return &TelemetryTask{
		fs:          fsys,
		storage:     storage,
		config:      config,
		lockTimeout: TelemetryLockTimeout,
	}
}

// BuildAction returns the archive action.
func (t *TelemetryTask) BuildAction() mission.ActionDescriptor[state.SystemState] {
	return mission.ActionDescriptor[state.SystemState]{
		Name: "save telemetry",
		Condition: func(s *state.SystemState) bool {
			delta := s.Time - t.last
			return delta < 0 || delta >= t.config.Delay
		},
		Action: t.save,
	}
}

func (t *TelemetryTask) save(s *state.SystemState) {
	snapshot, err := s.Telemetry.Snapshot(t.lockTimeout)
	if err != nil {
		obc.Warnf("telemetry not saved: %v", err)
		return
	}
	err = SaveToFile(t.fs, t.config, snapshot[:])
	t.storage.Record(err == nil)
	if err != nil {
		obc.Errorf("telemetry not saved: %v", err)
		return
	}
	t.last = s.Time
}

// SaveToFile appends one telemetry record to config.CurrentFile. A file at
// or above MaxFileSize replaces config.PreviousFile and a new current file
// is started. Records are aligned to state.TelemetrySize so a torn write
// never shifts the records after it.
func SaveToFile(fsys fs.FileSystem, config TelemetryConfig, record []byte) (err error) {
	f, size, err := openArchive(fsys, config.CurrentFile, fs.OpenAlways)
	if err != nil {
		return err
	}
	if size >= config.MaxFileSize {
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close telemetry file: %w", err)
		}
		if err := fsys.Move(config.CurrentFile, config.PreviousFile); err != nil {
			return fmt.Errorf("failed to rotate telemetry file: %w", err)
		}
		obc.Infof("telemetry file rotated to %s", config.PreviousFile)
		if f, size, err = openArchive(fsys, config.CurrentFile, fs.CreateAlways); err != nil {
			return err
		}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close telemetry file: %w", closeErr))
		}
	}()

	offset := alignUp(size, state.TelemetrySize)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek telemetry file: %w", err)
	}
	if _, err := f.Write(record); err != nil {
		return fmt.Errorf("failed to write telemetry record: %w", err)
	}
	return nil
}

func openArchive(fsys fs.FileSystem, path string, mode fs.OpenMode) (fs.File, int64, error) {
	f, err := fsys.Open(path, mode, fs.WriteOnly)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open telemetry file %s: %w", path, err)
	}
	size, err := f.Size()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("failed to stat telemetry file %s: %w", path, err)
	}
	return f, size, nil
}

func alignUp(n, align int64) int64 {
	if rem := n % align; rem != 0 {
		return n + align - rem
	}
	return n
}
