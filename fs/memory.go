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
	"io"
	"path"
	"sort"
	"strings"

	"github.com/ZaparooProject/go-obc/internal/syncutil"
)

type memNode struct {
	data []byte
	dir  bool
}

// Memory is an in-memory FileSystem. Directories are created implicitly by
// files and explicitly by MakeDirectory.
type Memory struct {
	nodes map[string]*memNode
	mu    syncutil.Mutex
}

// NewMemory creates an empty in-memory file system.
func NewMemory() *Memory {
	return &Memory{nodes: map[string]*memNode{"/": {dir: true}}}
}

func cleanPath(name string) string {
	return path.Clean("/" + name)
}

// Open implements FileSystem.
func (m *Memory) Open(name string, mode OpenMode, access AccessMode) (File, error) {
	name = cleanPath(name)
	m.mu.Lock()
	defer m.mu.Unlock()

	node, exists := m.nodes[name]
	if exists && node.dir {
		return nil, fmt.Errorf("open %s: is a directory: %w", name, ErrPermission)
	}
	switch mode {
	case OpenExisting:
		if !exists {
			return nil, fmt.Errorf("open %s: %w", name, ErrNotExist)
		}
	case OpenAlways:
		if !exists {
			node = &memNode{}
			m.nodes[name] = node
		}
	case CreateNew:
		if exists {
			return nil, fmt.Errorf("open %s: %w", name, ErrExist)
		}
		node = &memNode{}
		m.nodes[name] = node
	case CreateAlways:
		node = &memNode{}
		m.nodes[name] = node
	}
	return &memFile{fs: m, node: node, name: name, access: access}, nil
}

// Move implements FileSystem. An existing destination is replaced.
func (m *Memory) Move(from, to string) error {
	from, to = cleanPath(from), cleanPath(to)
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[from]
	if !ok {
		return fmt.Errorf("move %s: %w", from, ErrNotExist)
	}
	delete(m.nodes, from)
	m.nodes[to] = node
	return nil
}

// Exists implements FileSystem.
func (m *Memory) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[cleanPath(name)]
	return ok
}

// Remove implements FileSystem.
func (m *Memory) Remove(name string) error {
	name = cleanPath(name)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[name]; !ok {
		return fmt.Errorf("remove %s: %w", name, ErrNotExist)
	}
	delete(m.nodes, name)
	return nil
}

// MakeDirectory implements FileSystem.
func (m *Memory) MakeDirectory(name string) error {
	name = cleanPath(name)
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.nodes[name]; ok && !node.dir {
		return fmt.Errorf("make directory %s: %w", name, ErrExist)
	}
	m.nodes[name] = &memNode{dir: true}
	return nil
}

// ReadDirectory implements FileSystem. It lists direct children, sorted.
func (m *Memory) ReadDirectory(name string) ([]string, error) {
	name = cleanPath(name)
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := name
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seen := make(map[string]struct{})
	for p := range m.nodes {
		if p == name || !strings.HasPrefix(p, prefix) {
			continue
		}
		child, _, _ := strings.Cut(strings.TrimPrefix(p, prefix), "/")
		seen[child] = struct{}{}
	}
	if len(seen) == 0 {
		if node, ok := m.nodes[name]; !ok || !node.dir {
			return nil, fmt.Errorf("read directory %s: %w", name, ErrNotExist)
		}
	}
	names := make([]string, 0, len(seen))
	for child := range seen {
		names = append(names, child)
	}
	sort.Strings(names)
	return names, nil
}

type memFile struct {
	fs     *Memory
	node   *memNode
	name   string
	pos    int64
	access AccessMode
	closed bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if !f.access.canRead() {
		return 0, fmt.Errorf("read %s: %w", f.name, ErrPermission)
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if f.pos >= int64(len(f.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.node.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if !f.access.canWrite() {
		return 0, fmt.Errorf("write %s: %w", f.name, ErrPermission)
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	end := f.pos + int64(len(p))
	if end > int64(len(f.node.data)) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	copy(f.node.data[f.pos:], p)
	f.pos = end
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(len(f.node.data))
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", f.name, whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("seek %s: negative position", f.name)
	}
	f.pos = pos
	return pos, nil
}

func (f *memFile) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	return nil
}

func (f *memFile) Size() (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return int64(len(f.node.data)), nil
}

func (f *memFile) Truncate(size int64) error {
	if f.closed {
		return ErrClosed
	}
	if !f.access.canWrite() {
		return fmt.Errorf("truncate %s: %w", f.name, ErrPermission)
	}
	if size < 0 {
		return fmt.Errorf("truncate %s: negative size", f.name)
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if size <= int64(len(f.node.data)) {
		f.node.data = f.node.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.node.data)
	f.node.data = grown
	return nil
}

var _ FileSystem = (*Memory)(nil)
