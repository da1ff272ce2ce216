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
	"unsafe"

	"rvisor.dev/rvisor/pkg/memaddr"
)

// newAlignedPTEs returns a page-aligned set of PTEs. The runtime's size
// class for 4 KiB objects is page-aligned in practice, but that is not
// guaranteed, so a misaligned allocation falls back to carving an aligned
// table out of an oversized buffer.
func newAlignedPTEs() *PTEs {
	ptes := new(PTEs)
	offset := physicalFor(ptes) & memaddr.PageMask
	if offset == 0 {
		return ptes
	}
	unaligned := make([]byte, (2*memaddr.PageSize)-1)
	offset = uintptr(unsafe.Pointer(&unaligned[0])) & memaddr.PageMask
	if offset != 0 {
		offset = memaddr.PageSize - offset
	}
	return (*PTEs)(unsafe.Pointer(&unaligned[offset]))
}

// physicalFor returns the "physical" address for PTEs.
//
//go:nosplit
func physicalFor(ptes *PTEs) uintptr {
	return uintptr(unsafe.Pointer(ptes))
}

// fromPhysical returns the PTEs from the "physical" address.
//
//go:nosplit
func fromPhysical(physical uintptr) *PTEs {
	return (*PTEs)(unsafe.Pointer(physical))
}
