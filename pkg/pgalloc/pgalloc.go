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

// Package pgalloc provides the physical page arena backing user mappings.
//
// Pages are carved out of anonymous host mappings, so a page's physical
// address is its host address and mapped frames can be read and written
// directly once translated.
package pgalloc

import (
	"fmt"
	"sort"

	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/memutil"
	"rvisor.dev/rvisor/pkg/sync"
)

// chunkSize is the granularity of host mappings backing the arena.
const chunkSize = 4 << 20

type chunk struct {
	start memaddr.PhysAddr
	data  []byte

	// off is the bump offset of the next never-allocated byte.
	off uintptr
}

type run struct {
	addr   memaddr.PhysAddr
	length uint64
}

// MemoryFile is an allocator of page-aligned physical memory.
type MemoryFile struct {
	mu     sync.Mutex
	chunks []*chunk
	free   []run
}

// NewMemoryFile returns an empty MemoryFile. Host memory is mapped on
// demand by Allocate.
func NewMemoryFile() *MemoryFile {
	return &MemoryFile{}
}

// Allocate returns the physical address of a zeroed, page-aligned range of
// the given length, which must be a positive multiple of the page size.
func (f *MemoryFile) Allocate(length uint64) (memaddr.PhysAddr, error) {
	if length == 0 || length&memaddr.PageMask != 0 {
		return 0, linuxerr.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Prefer a previously freed run.
	for i := range f.free {
		r := &f.free[i]
		if r.length < length {
			continue
		}
		addr := r.addr
		r.addr += memaddr.PhysAddr(length)
		r.length -= length
		if r.length == 0 {
			f.free = append(f.free[:i], f.free[i+1:]...)
		}
		f.zero(addr, length)
		return addr, nil
	}

	for _, c := range f.chunks {
		if uintptr(length) <= uintptr(len(c.data))-c.off {
			addr := c.start + memaddr.PhysAddr(c.off)
			c.off += uintptr(length)
			return addr, nil
		}
	}

	size := uintptr(length)
	if size < chunkSize {
		size = chunkSize
	}
	data, err := memutil.MapAnonSlice(size)
	if err != nil {
		return 0, linuxerr.ENOMEM
	}
	c := &chunk{
		start: memaddr.PhysAddr(memutil.SlicePtr(data)),
		data:  data,
		off:   uintptr(length),
	}
	f.chunks = append(f.chunks, c)
	return c.start, nil
}

// Free returns a range obtained from Allocate to the arena. Partial frees
// of an allocated range are allowed, but the range must be page-aligned
// and must have been allocated.
func (f *MemoryFile) Free(addr memaddr.PhysAddr, length uint64) {
	if length == 0 || length&memaddr.PageMask != 0 || !addr.IsPageAligned() {
		panic(fmt.Sprintf("pgalloc: unaligned free [%#x, +%#x)", addr, length))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunkOf(addr) == nil {
		panic(fmt.Sprintf("pgalloc: free of unallocated address %#x", addr))
	}

	f.free = append(f.free, run{addr, length})
	sort.Slice(f.free, func(i, j int) bool { return f.free[i].addr < f.free[j].addr })

	// Coalesce adjacent runs within a chunk.
	merged := f.free[:1]
	for _, r := range f.free[1:] {
		last := &merged[len(merged)-1]
		if last.addr+memaddr.PhysAddr(last.length) == r.addr && f.chunkOf(last.addr) == f.chunkOf(r.addr) {
			last.length += r.length
			continue
		}
		merged = append(merged, r)
	}
	f.free = merged
}

// TotalSize returns the number of bytes of host memory backing the arena.
func (f *MemoryFile) TotalSize() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total uint64
	for _, c := range f.chunks {
		total += uint64(len(c.data))
	}
	return total
}

// Destroy unmaps all host memory. The MemoryFile and every address it ever
// returned must not be used afterwards.
func (f *MemoryFile) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chunks {
		if err := memutil.UnmapSlice(c.data); err != nil {
			panic(fmt.Sprintf("pgalloc: unmapping chunk at %#x: %v", c.start, err))
		}
	}
	f.chunks = nil
	f.free = nil
}

// zero clears a range being handed back out of the free list. Fresh chunk
// memory is already zero.
//
// Preconditions: f.mu is held and the range lies in one chunk.
func (f *MemoryFile) zero(addr memaddr.PhysAddr, length uint64) {
	c := f.chunkOf(addr)
	if c == nil {
		panic(fmt.Sprintf("pgalloc: free run at %#x belongs to no chunk", addr))
	}
	off := uintptr(addr - c.start)
	clear(c.data[off : off+uintptr(length)])
}

// Preconditions: f.mu is held.
func (f *MemoryFile) chunkOf(addr memaddr.PhysAddr) *chunk {
	for _, c := range f.chunks {
		if addr >= c.start && addr < c.start+memaddr.PhysAddr(len(c.data)) {
			return c
		}
	}
	return nil
}
