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

// Package memaddr defines the virtual and physical address types used
// throughout rvisor, along with page-granularity alignment helpers.
//
// rvisor models physical memory as host memory: a PhysAddr is the host
// address of the byte that backs it. Keeping the two address spaces as
// distinct types makes it a compile error to hand a guest-virtual address
// to something that walks or copies physical bytes.
package memaddr

import "encoding/binary"

// ByteOrder is the native byte order. RV64 and every supported host are
// little-endian.
var ByteOrder = binary.LittleEndian

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the page size, 4 KiB. Sv39 uses 4 KiB leaf pages.
	PageSize = 1 << PageShift

	// PageMask masks the offset within a page.
	PageMask = PageSize - 1
)

// VirtAddr is a guest virtual address.
type VirtAddr uintptr

// PhysAddr is a physical address, represented as the host address of the
// backing byte.
type PhysAddr uintptr

// RoundDown returns the address rounded down to the nearest page boundary.
func (v VirtAddr) RoundDown() VirtAddr {
	return v &^ PageMask
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v VirtAddr) RoundUp() (addr VirtAddr, ok bool) {
	addr = (v + PageMask).RoundDown()
	ok = addr >= v
	return
}

// PageOffset returns the offset of v into its containing page.
func (v VirtAddr) PageOffset() uintptr {
	return uintptr(v & PageMask)
}

// IsPageAligned returns true if v is page-aligned.
func (v VirtAddr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// IsAligned returns true if v is a multiple of align, which must be a power
// of two.
func (v VirtAddr) IsAligned(align uintptr) bool {
	return uintptr(v)&(align-1) == 0
}

// AddLength returns v + length. ok is true iff adding the length did not
// wrap around.
func (v VirtAddr) AddLength(length uint64) (end VirtAddr, ok bool) {
	end = v + VirtAddr(length)
	ok = end >= v && length <= uint64(^uintptr(0))
	return
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (p PhysAddr) RoundDown() PhysAddr {
	return p &^ PageMask
}

// PageOffset returns the offset of p into its containing page.
func (p PhysAddr) PageOffset() uintptr {
	return uintptr(p & PageMask)
}

// IsPageAligned returns true if p is page-aligned.
func (p PhysAddr) IsPageAligned() bool {
	return p.PageOffset() == 0
}

// AlignUp rounds n up to a multiple of align, which must be a power of two.
func AlignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// AlignDown rounds n down to a multiple of align, which must be a power of
// two.
func AlignDown(n, align uintptr) uintptr {
	return n &^ (align - 1)
}

// AlignUp4K rounds n up to a whole number of pages.
func AlignUp4K(n uintptr) uintptr {
	return AlignUp(n, PageSize)
}

// AlignDown4K rounds n down to a whole number of pages.
func AlignDown4K(n uintptr) uintptr {
	return AlignDown(n, PageSize)
}
