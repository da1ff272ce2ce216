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

package pagetables

import (
	"rvisor.dev/rvisor/pkg/sync"
)

// Allocator is used to allocate and map PTEs.
//
// Implementations must be safe for concurrent use; a single allocator may
// back every address space on a machine.
type Allocator interface {
	// NewPTEs returns a new, zeroed set of PTEs.
	NewPTEs() *PTEs

	// PhysicalFor gives the physical address for a set of PTEs.
	PhysicalFor(ptes *PTEs) uintptr

	// LookupPTEs looks up PTEs by physical address.
	LookupPTEs(physical uintptr) *PTEs

	// FreePTEs returns a set of PTEs to the allocator.
	FreePTEs(ptes *PTEs)
}

// RuntimeAllocator is an implementation of Allocator that uses runtime
// allocation, with a pool of previously freed tables.
//
// Page table entries hold table addresses only as integers, which the
// garbage collector cannot see, so the allocator roots every live table in
// the used set.
type RuntimeAllocator struct {
	mu   sync.Mutex
	used map[*PTEs]struct{}
	pool []*PTEs
}

// NewRuntimeAllocator returns an initialized RuntimeAllocator.
func NewRuntimeAllocator() *RuntimeAllocator {
	r := new(RuntimeAllocator)
	r.Init()
	return r
}

// Init initializes a RuntimeAllocator.
func (r *RuntimeAllocator) Init() {
	r.used = make(map[*PTEs]struct{})
}

// Drain empties the pool and drops the GC roots for pooled tables.
func (r *RuntimeAllocator) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ptes := range r.pool {
		r.pool[i] = nil
		delete(r.used, ptes)
	}
	r.pool = r.pool[:0]
}

// NewPTEs implements Allocator.NewPTEs.
//
// Note that the "physical" address here is actually the virtual address of
// the PTEs structure.
func (r *RuntimeAllocator) NewPTEs() *PTEs {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pool) > 0 {
		ptes := r.pool[len(r.pool)-1]
		r.pool = r.pool[:len(r.pool)-1]
		return ptes
	}
	ptes := newAlignedPTEs()
	r.used[ptes] = struct{}{}
	return ptes
}

// PhysicalFor implements Allocator.PhysicalFor.
//
//go:nosplit
func (r *RuntimeAllocator) PhysicalFor(ptes *PTEs) uintptr {
	return physicalFor(ptes)
}

// LookupPTEs implements Allocator.LookupPTEs.
//
//go:nosplit
func (r *RuntimeAllocator) LookupPTEs(physical uintptr) *PTEs {
	return fromPhysical(physical)
}

// FreePTEs implements Allocator.FreePTEs. The table is zeroed before it
// becomes available for reuse; callers may free tables that still hold
// valid leaf entries.
func (r *RuntimeAllocator) FreePTEs(ptes *PTEs) {
	*ptes = PTEs{}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = append(r.pool, ptes)
}
