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

// Package fs is the file-system abstraction used by the mission tasks.
// OS stores files under a host directory; Memory keeps them in memory for
// tests and emulation.
package fs

import (
	"io"
	iofs "io/fs"
)

// OpenMode selects what Open does with an existing or missing file.
type OpenMode uint8

const (
	// OpenExisting fails when the file does not exist.
	OpenExisting OpenMode = iota
	// OpenAlways opens the file, creating it when missing.
	OpenAlways
	// CreateNew creates the file and fails when it exists.
	CreateNew
	// CreateAlways creates the file, truncating an existing one.
	CreateAlways
)

// AccessMode selects the permitted operations on an open file.
type AccessMode uint8

const (
	// ReadOnly permits reads.
	ReadOnly AccessMode = iota
	// WriteOnly permits writes.
	WriteOnly
	// ReadWrite permits both.
	ReadWrite
)

func (a AccessMode) canRead() bool  { return a == ReadOnly || a == ReadWrite }
func (a AccessMode) canWrite() bool { return a == WriteOnly || a == ReadWrite }

// Errors are the io/fs sentinels so callers can test with errors.Is.
var (
	ErrNotExist   = iofs.ErrNotExist
	ErrExist      = iofs.ErrExist
	ErrPermission = iofs.ErrPermission
	ErrClosed     = iofs.ErrClosed
)

// File is an open file.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	Size() (int64, error)
	Truncate(size int64) error
}

// FileSystem opens and manages files by slash-separated path.
type FileSystem interface {
	Open(path string, mode OpenMode, access AccessMode) (File, error)
	Move(from, to string) error
	Exists(path string) bool
	Remove(path string) error
	MakeDirectory(path string) error
	ReadDirectory(path string) ([]string, error)
}
