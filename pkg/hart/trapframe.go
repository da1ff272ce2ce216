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
	"unsafe"

	"rvisor.dev/rvisor/pkg/memaddr"
)

// StackAlign is the stack alignment the RISC-V psABI requires.
const StackAlign = 16

// TrapFrame is the register state saved at the top of a task's kernel
// stack when a trap takes the hart out of user code.
type TrapFrame struct {
	// General registers x1 through x31.
	Ra  uint64
	Sp  uint64
	Gp  uint64
	Tp  uint64
	T0  uint64
	T1  uint64
	T2  uint64
	S0  uint64
	S1  uint64
	A0  uint64
	A1  uint64
	A2  uint64
	A3  uint64
	A4  uint64
	A5  uint64
	A6  uint64
	A7  uint64
	S2  uint64
	S3  uint64
	S4  uint64
	S5  uint64
	S6  uint64
	S7  uint64
	S8  uint64
	S9  uint64
	S10 uint64
	S11 uint64
	T3  uint64
	T4  uint64
	T5  uint64
	T6  uint64

	// Supervisor CSRs captured at trap entry.
	Sepc    uint64
	Sstatus uint64
	Scause  uint64
	Stval   uint64

	// OrigA0 is A0 as it was at trap entry, before a return value
	// overwrites it.
	OrigA0 uint64
}

// TrapFrameSize is the size of a TrapFrame in bytes. It is a multiple of
// StackAlign, so a frame placed at the aligned offset below a stack top
// ends exactly at the top.
const TrapFrameSize = unsafe.Sizeof(TrapFrame{})

// NewUserTrapFrame returns the register state for first entry into user
// code: sret will land at entry with the given user stack pointer,
// interrupts enabled and user memory accessible.
func NewUserTrapFrame(entry, usp memaddr.VirtAddr) TrapFrame {
	return TrapFrame{
		Sp:      uint64(usp),
		Sepc:    uint64(entry),
		Sstatus: SstatusSPIE | SstatusSUM,
	}
}
