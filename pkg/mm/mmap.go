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

package mm

import (
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/log"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/pagetables"
)

// MMapOpts configures an MMap call.
type MMapOpts struct {
	// Addr is the placement hint, or the required address when Fixed.
	Addr memaddr.VirtAddr

	// Length is the requested length, not necessarily page-aligned.
	Length uint64

	// Access is the mapped permissions.
	Access memaddr.AccessType

	// Fixed requires the mapping at exactly Addr.
	Fixed bool
}

// MMap maps fresh anonymous memory and returns its address.
//
// Without Fixed, a zero hint places the mapping in the unmapped area; a
// nonzero hint is honored when the range is free. Mappings never replace
// existing ones: a Fixed request over mapped pages fails with EEXIST,
// because nothing here can unmap the old pages.
func (as *AddressSpace) MMap(opts MMapOpts) (memaddr.VirtAddr, error) {
	if opts.Length == 0 {
		return 0, linuxerr.EINVAL
	}
	length, ok := memaddr.VirtAddr(opts.Length).RoundUp()
	if !ok {
		return 0, linuxerr.ENOMEM
	}
	if opts.Fixed && !opts.Addr.IsPageAligned() {
		return 0, linuxerr.EINVAL
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	addr := opts.Addr.RoundDown()
	switch {
	case opts.Fixed:
		if end, ok := addr.AddLength(uint64(length)); !ok || end > hart.TaskSize {
			return 0, linuxerr.ENOMEM
		}
		if !as.rangeFree(addr, length) {
			return 0, linuxerr.EEXIST
		}
	case addr != 0 && addr+length >= addr && addr+length <= hart.TaskSize && as.rangeFree(addr, length):
		// Hint honored.
	default:
		var err error
		if addr, err = as.findAvailable(length); err != nil {
			return 0, err
		}
	}

	frame, err := as.mf.Allocate(uint64(length))
	if err != nil {
		return 0, err
	}
	as.pt.Map(addr, uintptr(length), pagetables.MapOpts{AccessType: opts.Access, User: true}, frame)
	as.vmas.ReplaceOrInsert(vma{start: addr, end: addr + length, at: opts.Access, frame: frame})
	log.Debugf("mm%d: mmap [%#x, %#x) %v", as.id, addr, addr+length, opts.Access)
	return addr, nil
}

// MUnmap would remove a mapping. Nothing needs it yet, and leaving pages
// mapped is always safe, so it only reports that it is missing.
func (as *AddressSpace) MUnmap(addr memaddr.VirtAddr, length uint64) error {
	log.Warningf("mm%d: munmap [%#x, +%#x) not implemented; mapping retained", as.id, addr, length)
	return linuxerr.ENOSYS
}

// SetBrk sets the program break floor, normally the end of the loaded
// image. The break starts there.
func (as *AddressSpace) SetBrk(addr memaddr.VirtAddr) {
	as.mu.Lock()
	defer as.mu.Unlock()
	up, _ := addr.RoundUp()
	as.brkStart = up
	as.brkEnd = up
	as.brkMapped = up
}

// Brk moves the program break, mapping pages for growth, and returns the
// resulting break. As in Linux, a zero or unacceptable address leaves the
// break where it is, and the current break is returned rather than an
// error. Shrinking only moves the pointer; pages stay mapped and keep
// their contents, so growing again re-exposes them.
func (as *AddressSpace) Brk(addr memaddr.VirtAddr) memaddr.VirtAddr {
	as.mu.Lock()
	defer as.mu.Unlock()

	if addr < as.brkStart || addr > hart.TaskSize {
		return as.brkEnd
	}
	if addr > as.brkMapped {
		newMapped, ok := addr.RoundUp()
		if !ok {
			return as.brkEnd
		}
		length := uint64(newMapped - as.brkMapped)
		frame, err := as.mf.Allocate(length)
		if err != nil {
			log.Warningf("mm%d: brk to %#x failed: %v", as.id, addr, err)
			return as.brkEnd
		}
		as.pt.Map(as.brkMapped, uintptr(length), pagetables.MapOpts{AccessType: memaddr.ReadWrite, User: true}, frame)
		as.vmas.ReplaceOrInsert(vma{start: as.brkMapped, end: newMapped, at: memaddr.ReadWrite, frame: frame})
		as.brkMapped = newMapped
	}
	as.brkEnd = addr
	return as.brkEnd
}

// BrkEnd returns the current program break.
func (as *AddressSpace) BrkEnd() memaddr.VirtAddr {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.brkEnd
}

// rangeFree returns true iff [addr, addr+length) overlaps no vma.
//
// Preconditions: as.mu is held.
func (as *AddressSpace) rangeFree(addr, length memaddr.VirtAddr) bool {
	free := true
	// The only vma that could overlap from below is the last one
	// starting at or before addr.
	as.vmas.DescendLessOrEqual(vma{start: addr}, func(v vma) bool {
		free = v.end <= addr
		return false
	})
	if !free {
		return false
	}
	as.vmas.AscendGreaterOrEqual(vma{start: addr}, func(v vma) bool {
		free = v.start >= addr+length
		return false
	})
	return free
}

// findAvailable returns the lowest free range of the given length in the
// unmapped area.
//
// Preconditions: as.mu is held.
func (as *AddressSpace) findAvailable(length memaddr.VirtAddr) (memaddr.VirtAddr, error) {
	addr := hart.TaskUnmappedBase
	as.vmas.AscendGreaterOrEqual(vma{start: 0}, func(v vma) bool {
		if v.end <= addr {
			return true
		}
		if v.start >= addr+length {
			return false
		}
		addr = v.end
		return true
	})
	if end, ok := addr.AddLength(uint64(length)); !ok || end > hart.TaskSize {
		return 0, linuxerr.ENOMEM
	}
	return addr, nil
}
