// Copyright 2023 The rvisor Authors.
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

// Package fdtable implements the kernel's descriptor table.
//
// The machine runs one program, so there is a single table. Descriptors
// 0 through 2 are wired to the console; the rest are handed out lowest
// free first, backed by host files.
package fdtable

import (
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/sync"
)

// maxFDs caps the table, standing in for RLIMIT_NOFILE.
const maxFDs = 1024

// File is an open file as the syscall layer sees it. Implementations
// return linuxerr errors.
type File interface {
	// Read reads up to len(b) bytes at the current offset. A zero count
	// with a nil error is end of file.
	Read(b []byte) (int, error)

	// Write writes b at the current offset.
	Write(b []byte) (int, error)

	// Close releases the file. The table never calls it; whoever removes
	// a file owns closing it.
	Close() error
}

// FDTable maps descriptors to open files.
type FDTable struct {
	mu    sync.Mutex
	files map[int32]File
}

// New returns a table with the three standard descriptors wired to the
// console.
func New() *FDTable {
	t := &FDTable{files: make(map[int32]File)}
	for fd := int32(0); fd < 3; fd++ {
		t.files[fd] = Console{}
	}
	return t
}

// Get returns the file installed at fd.
func (t *FDTable) Get(fd int32) (File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	return f, ok
}

// Install assigns the lowest free descriptor to f.
func (t *FDTable) Install(f File) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd := int32(0); fd < maxFDs; fd++ {
		if _, ok := t.files[fd]; !ok {
			t.files[fd] = f
			return fd, nil
		}
	}
	return 0, linuxerr.EMFILE
}

// Remove drops fd from the table, returning its file for the caller to
// close.
func (t *FDTable) Remove(fd int32) (File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	if ok {
		delete(t.files, fd)
	}
	return f, ok
}

// Close closes every file left in the table.
func (t *FDTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, f := range t.files {
		f.Close()
		delete(t.files, fd)
	}
}
