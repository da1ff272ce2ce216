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

// Package mm implements user address spaces: Sv39 tables plus the vma set
// and program break that describe them. An address space is shared by all
// tasks of a thread group and is destroyed when its last user drops it.
package mm

import (
	"github.com/google/btree"

	"rvisor.dev/rvisor/pkg/atomicbitops"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/log"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/pagetables"
	"rvisor.dev/rvisor/pkg/pgalloc"
	"rvisor.dev/rvisor/pkg/refs"
	"rvisor.dev/rvisor/pkg/sync"
)

// lastMMID feeds AllocMMID.
var lastMMID atomicbitops.Uint64

// AllocMMID returns a fresh nonzero address space identity. Zero always
// means "no address space".
func AllocMMID() uint64 {
	return lastMMID.Add(1)
}

// vma is one mapped region, backed by a contiguous run of frames.
type vma struct {
	start memaddr.VirtAddr
	end   memaddr.VirtAddr
	at    memaddr.AccessType
	frame memaddr.PhysAddr
}

func vmaLess(a, b vma) bool {
	return a.start < b.start
}

// AddressSpace is a user address space.
type AddressSpace struct {
	// users counts the tasks sharing the space. The space tears itself
	// down when the count reaches zero.
	users refs.Refs

	id   uint64
	mf   *pgalloc.MemoryFile
	root memaddr.PhysAddr

	// mu serializes all mapping changes, including those made through
	// pt, which is not synchronized itself.
	mu   sync.Mutex
	pt   *pagetables.PageTables
	vmas *btree.BTreeG[vma]

	// Program break state. brkEnd is the current break; pages up to
	// brkMapped stay mapped even when the break moves back down, since
	// nothing here unmaps.
	brkStart  memaddr.VirtAddr
	brkEnd    memaddr.VirtAddr
	brkMapped memaddr.VirtAddr
}

// NewAddressSpace returns an address space with a single user, seeded
// from the machine's kernel tables.
func NewAddressSpace(m *hart.Machine) *AddressSpace {
	as := &AddressSpace{
		id:   AllocMMID(),
		mf:   m.MemoryFile,
		pt:   m.DupKernelPageDir(),
		vmas: btree.NewG(16, vmaLess),
	}
	as.root = as.pt.RootPhysical()
	as.users.InitRefs()
	log.Debugf("mm%d: new address space, root %#x", as.id, as.root)
	return as
}

// ID returns the address space identity.
func (as *AddressSpace) ID() uint64 {
	return as.id
}

// Root returns the physical translation root. The root is fixed for the
// life of the space.
func (as *AddressSpace) Root() memaddr.PhysAddr {
	return as.root
}

// IncUsers adds a user.
func (as *AddressSpace) IncUsers() {
	as.users.IncRef()
}

// DecUsers drops a user, destroying the space when none remain.
func (as *AddressSpace) DecUsers() {
	as.users.DecRef(as.destroy)
}

// Users returns the current user count.
func (as *AddressSpace) Users() int64 {
	return as.users.ReadRefs()
}

func (as *AddressSpace) destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	log.Debugf("mm%d: destroying address space", as.id)
	as.vmas.Ascend(func(v vma) bool {
		as.mf.Free(v.frame, uint64(v.end-v.start))
		return true
	})
	as.vmas.Clear(false)
	as.pt.Release()
	as.pt = nil
}
