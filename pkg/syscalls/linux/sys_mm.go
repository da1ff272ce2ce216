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

package linux

import (
	"fmt"

	"rvisor.dev/rvisor/pkg/abi/linux"
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/mm"
	"rvisor.dev/rvisor/pkg/syscalls"
	"rvisor.dev/rvisor/pkg/taskctx"
)

// currentMM returns the calling task's address space. User code cannot
// trap from a task that has none, so a miss is kernel misuse.
func currentMM(c taskctx.CurrentCtx) *mm.AddressSpace {
	as := c.AddressSpace()
	if as == nil {
		panic(fmt.Sprintf("task %d made a memory syscall without an address space", c.PID()))
	}
	return as
}

// Brk implements linux syscall brk(2). The return value is the new
// program break, or the old one when the request cannot be honored.
func Brk(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	return uintptr(currentMM(ctx.Task).Brk(memaddr.VirtAddr(tf.A0))), nil
}

// Mmap implements linux syscall mmap(2) for private anonymous mappings.
func Mmap(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	prot, flags := tf.A2, tf.A3
	if flags&linux.MAP_ANONYMOUS == 0 {
		return 0, linuxerr.ENOSYS
	}
	at := memaddr.AccessType{
		Read:    prot&linux.PROT_READ != 0,
		Write:   prot&linux.PROT_WRITE != 0,
		Execute: prot&linux.PROT_EXEC != 0,
	}
	if !at.Any() {
		return 0, linuxerr.EINVAL
	}

	addr, err := currentMM(ctx.Task).MMap(mm.MMapOpts{
		Addr:   memaddr.VirtAddr(tf.A0),
		Length: tf.A1,
		Access: at,
		Fixed:  flags&linux.MAP_FIXED != 0,
	})
	if err != nil {
		return 0, err
	}
	return uintptr(addr), nil
}

// Munmap implements linux syscall munmap(2).
func Munmap(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	if err := currentMM(ctx.Task).MUnmap(memaddr.VirtAddr(tf.A0), tf.A1); err != nil {
		return 0, err
	}
	return 0, nil
}
