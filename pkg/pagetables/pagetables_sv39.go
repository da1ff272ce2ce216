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
	"fmt"

	"rvisor.dev/rvisor/pkg/memaddr"
)

const (
	// entriesPerPage is the number of PTEs per table page.
	entriesPerPage = 512

	// levels is the depth of an Sv39 walk.
	levels = 3

	// indexBits is the number of VPN bits consumed per level.
	indexBits = 9

	indexMask = (1 << indexBits) - 1
)

// Sv39 virtual addresses are 39 bits, sign-extended through bit 63. The two
// canonical halves are [0, lowerTop) and [upperBottom, 2^64).
const (
	lowerTop    = memaddr.VirtAddr(1) << 38
	upperBottom = ^(memaddr.VirtAddr(1)<<38 - 1)
)

// satpModeSv39 selects the Sv39 translation mode in satp.MODE.
const satpModeSv39 = uint64(8) << 60

// checkCanonical panics if [start, end) is not contained in one canonical
// half of the Sv39 address space.
func checkCanonical(start, end memaddr.VirtAddr) {
	if end != 0 && end <= lowerTop {
		return
	}
	if start >= upperBottom {
		return
	}
	panic(fmt.Sprintf("pagetables: non-canonical Sv39 range [%#x, %#x)", start, end))
}

// SATP returns the satp value installing these tables, with ASID zero.
//
//go:nosplit
func (p *PageTables) SATP() uint64 {
	return satpModeSv39 | uint64(uintptr(p.rootPhysical)>>memaddr.PageShift)
}

// RootPhysical returns the physical address of the root table. This is the
// value written to satp.PPN (shifted) on an address-space switch.
//
//go:nosplit
func (p *PageTables) RootPhysical() memaddr.PhysAddr {
	return p.rootPhysical
}
