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
	"rvisor.dev/rvisor/pkg/memaddr"
)

// visitFunc is called with the level-0 entry for each page in a walked
// range. The entry may be invalid.
type visitFunc func(va memaddr.VirtAddr, pte *PTE)

// levelShift returns the shift of the VPN field consumed at the given level.
func levelShift(level int) uint {
	return memaddr.PageShift + uint(indexBits*level)
}

// walkRange visits the level-0 entry for every page in [start, end). If
// alloc is true, intermediate tables are created as needed; otherwise
// unpopulated subtrees are skipped.
//
// Preconditions: start and end are page-aligned and lie in one canonical
// half, except that end may be ^VirtAddr(0) to denote the top of the
// address space.
func (p *PageTables) walkRange(start, end memaddr.VirtAddr, alloc bool, visit visitFunc) {
	p.walkLevel(p.root, levels-1, start, end, alloc, visit)
}

func (p *PageTables) walkLevel(table *PTEs, level int, start, end memaddr.VirtAddr, alloc bool, visit visitFunc) {
	span := memaddr.VirtAddr(1) << levelShift(level)
	for va := start; va < end; {
		next := (va &^ (span - 1)) + span
		if next > end || next < va {
			next = end
		}
		pte := &table[int(va>>levelShift(level))&indexMask]
		if level == 0 {
			visit(va, pte)
			va = next
			continue
		}
		if !pte.Valid() {
			if !alloc {
				va = next
				continue
			}
			ptes := p.Allocator.NewPTEs()
			pte.setPageTable(memaddr.PhysAddr(p.Allocator.PhysicalFor(ptes)))
		} else if !pte.IsTable() {
			panic("pagetables: unexpected superpage entry")
		}
		p.walkLevel(p.Allocator.LookupPTEs(uintptr(pte.Address())), level-1, va, next, alloc, visit)
		va = next
	}
}
