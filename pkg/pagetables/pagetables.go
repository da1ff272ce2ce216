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

// Package pagetables provides Sv39 page tables for RV64 harts.
//
// Page table memory is owned by an Allocator, and "physical" addresses are
// host addresses of the allocated tables, so a table walk started from a
// physical root always lands on real bytes. This is what lets a simulated
// hart translate user addresses exactly the way the hardware walker would.
//
// PageTables methods are not synchronized; callers that share a set of
// tables must serialize access (the owning address space holds the lock).
package pagetables

import (
	"rvisor.dev/rvisor/pkg/memaddr"
)

// PageTables is a set of page tables.
type PageTables struct {
	// Allocator is used to allocate nodes.
	Allocator Allocator

	// root is the pagetable root.
	root *PTEs

	// rootPhysical is the cached physical address of the root.
	//
	// This is saved only to prevent constant translation.
	rootPhysical memaddr.PhysAddr
}

// MapOpts are mapping options.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType memaddr.AccessType

	// User indicates the mapping is a user mapping.
	User bool

	// Global indicates the mapping is global (never flushed by an
	// address-space switch).
	Global bool
}

// New returns new PageTables.
func New(a Allocator) *PageTables {
	p := new(PageTables)
	p.Init(a)
	return p
}

// Init initializes a set of PageTables.
func (p *PageTables) Init(allocator Allocator) {
	p.Allocator = allocator
	p.root = allocator.NewPTEs()
	p.rootPhysical = memaddr.PhysAddr(allocator.PhysicalFor(p.root))
}

// FromRoot returns a view over existing tables rooted at the given
// physical address, as a hardware walker starting from satp would see
// them. The view shares table memory with its source and must not be
// Released.
func FromRoot(a Allocator, root memaddr.PhysAddr) *PageTables {
	return &PageTables{
		Allocator:    a,
		root:         a.LookupPTEs(uintptr(root)),
		rootPhysical: root,
	}
}

// Map installs a mapping with the given physical address.
//
// True is returned iff there was a previous mapping in the range that
// differed from the new one.
//
// Preconditions: addr, length and physical must be page-aligned, addr+length
// must not overflow, and the range must lie in one canonical Sv39 half.
func (p *PageTables) Map(addr memaddr.VirtAddr, length uintptr, opts MapOpts, physical memaddr.PhysAddr) bool {
	if !opts.AccessType.Any() {
		return p.Unmap(addr, length)
	}
	if !addr.IsPageAligned() || length&memaddr.PageMask != 0 || !physical.IsPageAligned() {
		panic("pagetables.Map: unaligned")
	}
	end, ok := addr.AddLength(uint64(length))
	if !ok {
		panic("pagetables.Map: overflow")
	}
	checkCanonical(addr, end)
	prev := false
	p.walkRange(addr, end, true, func(va memaddr.VirtAddr, pte *PTE) {
		phys := physical + memaddr.PhysAddr(va-addr)
		if pte.Valid() && (pte.Address() != phys || pte.Opts() != opts) {
			prev = true
		}
		pte.Set(phys, opts)
	})
	return prev
}

// Unmap unmaps the given range.
//
// True is returned iff there was a previous mapping in the range.
//
// Preconditions: as for Map.
func (p *PageTables) Unmap(addr memaddr.VirtAddr, length uintptr) bool {
	if !addr.IsPageAligned() || length&memaddr.PageMask != 0 {
		panic("pagetables.Unmap: unaligned")
	}
	end, ok := addr.AddLength(uint64(length))
	if !ok {
		panic("pagetables.Unmap: overflow")
	}
	checkCanonical(addr, end)
	count := 0
	p.walkRange(addr, end, false, func(_ memaddr.VirtAddr, pte *PTE) {
		if pte.Valid() {
			pte.Clear()
			count++
		}
	})
	return count > 0
}

// Lookup returns the physical address and mapping options for the given
// virtual address, which need not be page-aligned.
func (p *PageTables) Lookup(addr memaddr.VirtAddr) (physical memaddr.PhysAddr, opts MapOpts, ok bool) {
	off := addr.PageOffset()
	base := addr.RoundDown()
	p.walkRange(base, base+memaddr.PageSize, false, func(_ memaddr.VirtAddr, pte *PTE) {
		if !pte.Valid() {
			return
		}
		physical = pte.Address() + memaddr.PhysAddr(off)
		opts = pte.Opts()
		ok = true
	})
	return
}

// Clone returns a new set of tables with an identical set of mappings,
// backed by the same allocator.
func (p *PageTables) Clone() *PageTables {
	np := New(p.Allocator)
	for _, half := range [][2]memaddr.VirtAddr{{0, lowerTop}, {upperBottom, ^memaddr.VirtAddr(0)}} {
		p.walkRange(half[0], half[1], false, func(va memaddr.VirtAddr, pte *PTE) {
			if pte.Valid() {
				np.Map(va, memaddr.PageSize, pte.Opts(), pte.Address())
			}
		})
	}
	return np
}

// IsEmpty returns true iff the tables contain no valid leaf entries.
func (p *PageTables) IsEmpty() bool {
	empty := true
	for _, half := range [][2]memaddr.VirtAddr{{0, lowerTop}, {upperBottom, ^memaddr.VirtAddr(0)}} {
		p.walkRange(half[0], half[1], false, func(_ memaddr.VirtAddr, pte *PTE) {
			if pte.Valid() {
				empty = false
			}
		})
	}
	return empty
}

// Release frees all page table memory back to the allocator, after which
// the tables must not be used.
func (p *PageTables) Release() {
	p.releaseLevel(p.root, levels-1)
	p.Allocator.FreePTEs(p.root)
	p.root = nil
	p.rootPhysical = 0
}

func (p *PageTables) releaseLevel(table *PTEs, level int) {
	if level == 0 {
		return
	}
	for i := range table {
		pte := &table[i]
		if pte.Valid() && pte.IsTable() {
			child := p.Allocator.LookupPTEs(uintptr(pte.Address()))
			p.releaseLevel(child, level-1)
			p.Allocator.FreePTEs(child)
		}
		pte.Clear()
	}
}
