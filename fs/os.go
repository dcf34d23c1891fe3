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

package fs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// OS is a FileSystem rooted at a host directory. Paths cannot escape the
// root.
type OS struct {
	root string
}

// NewOS creates the root directory if needed and returns a FileSystem on it.
func NewOS(root string) (*OS, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &OS{root: root}, nil
}

// Root returns the host directory.
func (o *OS) Root() string {
	return o.root
}

func (o *OS) resolve(name string) string {
	return filepath.Join(o.root, filepath.FromSlash(path.Clean("/"+name)))
}

func openFlags(mode OpenMode, access AccessMode) int {
	var flags int
	switch access {
	case ReadOnly:
		flags = os.O_RDONLY
	case WriteOnly:
		flags = os.O_WRONLY
	case ReadWrite:
		flags = os.O_RDWR
	}
	switch mode {
	case OpenExisting:
	case OpenAlways:
		flags |= os.O_CREATE
	case CreateNew:
		flags |= os.O_CREATE | os.O_EXCL
	case CreateAlways:
		flags |= os.O_CREATE | os.O_TRUNC
	}
	return flags
}

// Open implements FileSystem.
func (o *OS) Open(name string, mode OpenMode, access AccessMode) (File, error) {
	f, err := os.OpenFile(o.resolve(name), openFlags(mode, access), 0o640) //nolint:gosec // path is confined to root
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return osFile{f}, nil
}

// Move implements FileSystem. An existing destination is replaced.
func (o *OS) Move(from, to string) error {
	if err := os.Rename(o.resolve(from), o.resolve(to)); err != nil {
		return fmt.Errorf("move %s to %s: %w", from, to, err)
	}
	return nil
}

// Exists implements FileSystem.
func (o *OS) Exists(name string) bool {
	_, err := os.Stat(o.resolve(name))
	return err == nil
}

// Remove implements FileSystem.
func (o *OS) Remove(name string) error {
	if err := os.Remove(o.resolve(name)); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// MakeDirectory implements FileSystem. Missing parents are created.
func (o *OS) MakeDirectory(name string) error {
	if err := os.MkdirAll(o.resolve(name), 0o750); err != nil {
		return fmt.Errorf("make directory %s: %w", name, err)
	}
	return nil
}

// ReadDirectory implements FileSystem. Names are sorted.
func (o *OS) ReadDirectory(name string) ([]string, error) {
	entries, err := os.ReadDir(o.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", name, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

type osFile struct {
	*os.File
}

func (f osFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	return info.Size(), nil
}

var _ FileSystem = (*OS)(nil)
