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

package hart

import (
	"fmt"

	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/pagetables"
)

// Translate resolves addr for the given access against the hart's
// installed translation root, through the TLB. A TLB hit answers from the
// cached entry alone; only a miss walks the tables, so a mapping change
// is invisible until the relevant entries are flushed.
//
// A missing translation, insufficient permissions, or a user page touched
// while SUM is clear is an unhandled supervisor page fault, which is
// fatal.
func (h *Hart) Translate(addr memaddr.VirtAddr, at memaddr.AccessType) memaddr.PhysAddr {
	page := addr.RoundDown()
	h.tlbMu.Lock()
	e, ok := h.tlb[page]
	h.tlbMu.Unlock()
	if ok {
		h.tlbHits.Add(1)
	} else {
		h.tlbMisses.Add(1)
		pt := pagetables.FromRoot(h.machine.Allocator, h.ReadPageTableRoot())
		phys, opts, found := pt.Lookup(page)
		if !found {
			h.pageFault(addr, at, "not mapped")
		}
		e = tlbEntry{phys: phys, opts: opts}
		h.tlbMu.Lock()
		h.tlb[page] = e
		h.tlbMu.Unlock()
	}
	if !e.opts.AccessType.SupersetOf(at) {
		h.pageFault(addr, at, "protection violation")
	}
	if e.opts.User && !h.SUMEnabled() {
		h.pageFault(addr, at, "user page accessed with SUM clear")
	}
	return e.phys + memaddr.PhysAddr(addr.PageOffset())
}

// pageFault reports a fatal translation failure with the scause the
// hardware would raise for the access.
func (h *Hart) pageFault(addr memaddr.VirtAddr, at memaddr.AccessType, reason string) {
	cause := ScauseLoadPageFault
	switch {
	case at.Write:
		cause = ScauseStorePageFault
	case at.Execute:
		cause = ScauseInstructionPageFault
	}
	panic(fmt.Sprintf("hart%d: unhandled page fault: scause=%d stval=%#x access=%s: %s",
		h.id, cause, addr, at, reason))
}
