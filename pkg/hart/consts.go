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
	"rvisor.dev/rvisor/pkg/memaddr"
)

// sstatus bits.
const (
	// SstatusSIE enables supervisor interrupts.
	SstatusSIE = uint64(1) << 1

	// SstatusSPIE holds the interrupt-enable state to restore on sret.
	SstatusSPIE = uint64(1) << 5

	// SstatusSPP holds the privilege to return to on sret; clear means
	// user mode.
	SstatusSPP = uint64(1) << 8

	// SstatusSUM permits supervisor loads and stores to user pages.
	SstatusSUM = uint64(1) << 18
)

// satp fields.
const (
	// SatpModeSv39 selects Sv39 translation.
	SatpModeSv39 = uint64(8) << 60

	satpPPNMask = (uint64(1) << 44) - 1
)

// scause exception codes.
const (
	ScauseECallUser            = 8
	ScauseInstructionPageFault = 12
	ScauseLoadPageFault        = 13
	ScauseStorePageFault       = 15
)

// User address space layout. User code lives in the lower canonical Sv39
// half; the kernel half starts at KernelBase.
const (
	// TaskSize is the first address beyond the user address space.
	TaskSize = memaddr.VirtAddr(1) << 38

	// ELFETDynBase is the load base for position-independent executables.
	ELFETDynBase = TaskSize / 3 * 2

	// TaskUnmappedBase is where unhinted mmap placement begins.
	TaskUnmappedBase = (TaskSize / 3) &^ memaddr.PageMask

	// KernelBase is the bottom of the kernel half.
	KernelBase = ^(memaddr.VirtAddr(1)<<38 - 1)
)
