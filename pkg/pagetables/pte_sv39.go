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
	"sync/atomic"

	"rvisor.dev/rvisor/pkg/memaddr"
)

// Sv39 PTE bits.
const (
	pteValid    = 1 << 0
	pteRead     = 1 << 1
	pteWrite    = 1 << 2
	pteExecute  = 1 << 3
	pteUser     = 1 << 4
	pteGlobal   = 1 << 5
	pteAccessed = 1 << 6
	pteDirty    = 1 << 7

	// ppnShift is the offset of the PPN field within a PTE.
	ppnShift = 10
)

// PTE is a page table entry.
type PTE uintptr

// Clear zeros the entry.
//
//go:nosplit
func (p *PTE) Clear() {
	atomic.StoreUintptr((*uintptr)(p), 0)
}

// Valid returns true iff the entry is valid.
//
//go:nosplit
func (p *PTE) Valid() bool {
	return atomic.LoadUintptr((*uintptr)(p))&pteValid != 0
}

// IsTable returns true iff the entry points to a next-level table. An Sv39
// entry with no R/W/X bits is a pointer, not a leaf.
//
//go:nosplit
func (p *PTE) IsTable() bool {
	v := atomic.LoadUintptr((*uintptr)(p))
	return v&pteValid != 0 && v&(pteRead|pteWrite|pteExecute) == 0
}

// Address extracts the physical address mapped or pointed to by the entry.
//
//go:nosplit
func (p *PTE) Address() memaddr.PhysAddr {
	v := atomic.LoadUintptr((*uintptr)(p))
	return memaddr.PhysAddr(v>>ppnShift) << memaddr.PageShift
}

// Opts returns the access options encoded in a leaf entry.
//
//go:nosplit
func (p *PTE) Opts() MapOpts {
	v := atomic.LoadUintptr((*uintptr)(p))
	return MapOpts{
		AccessType: memaddr.AccessType{
			Read:    v&pteRead != 0,
			Write:   v&pteWrite != 0,
			Execute: v&pteExecute != 0,
		},
		User:   v&pteUser != 0,
		Global: v&pteGlobal != 0,
	}
}

// Set installs a leaf entry for the given physical address and options. The
// hardware A and D bits are preset so the simulated walker never needs to
// update entries in place. Writable implies readable; Sv39 reserves W-only
// encodings.
//
//go:nosplit
func (p *PTE) Set(addr memaddr.PhysAddr, opts MapOpts) {
	if !opts.AccessType.Any() {
		p.Clear()
		return
	}
	v := uintptr(addr>>memaddr.PageShift)<<ppnShift | pteValid | pteAccessed | pteDirty
	if opts.AccessType.Read {
		v |= pteRead
	}
	if opts.AccessType.Write {
		v |= pteWrite | pteRead
	}
	if opts.AccessType.Execute {
		v |= pteExecute
	}
	if opts.User {
		v |= pteUser
	}
	if opts.Global {
		v |= pteGlobal
	}
	atomic.StoreUintptr((*uintptr)(p), v)
}

// setPageTable installs a non-leaf entry pointing at a next-level table.
//
//go:nosplit
func (p *PTE) setPageTable(addr memaddr.PhysAddr) {
	v := uintptr(addr>>memaddr.PageShift)<<ppnShift | pteValid
	atomic.StoreUintptr((*uintptr)(p), v)
}

// PTEs is a single level of a page table tree, occupying exactly one page.
type PTEs [entriesPerPage]PTE
