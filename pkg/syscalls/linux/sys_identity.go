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
	"rvisor.dev/rvisor/pkg/abi/linux"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/syscalls"
	"rvisor.dev/rvisor/pkg/usermem"
)

// Getpid implements linux syscall getpid(2).
func Getpid(ctx *syscalls.Context, _ *hart.TrapFrame) (uintptr, error) {
	return uintptr(ctx.Task.TGID()), nil
}

// Gettid implements linux syscall gettid(2).
func Gettid(ctx *syscalls.Context, _ *hart.TrapFrame) (uintptr, error) {
	return uintptr(ctx.Task.PID()), nil
}

// Uname implements linux syscall uname(2). The strings describe the
// Linux personality the kernel presents, not the host underneath.
func Uname(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	const entry = linux.UTSLen + 1
	buf := make([]byte, 6*entry)
	for i, s := range []string{
		"Linux",
		"host",
		"5.9.0-rc4+",
		"#1337 SMP Fri Mar 4 09:36:42 CST 2022",
		"riscv64",
		"(none)",
	} {
		// Truncate to leave the trailing NUL in place.
		copy(buf[i*entry:(i+1)*entry-1], s)
	}
	if _, err := usermem.CopyOut(ctx.Hart, memaddr.VirtAddr(tf.A0), buf); err != nil {
		return 0, err
	}
	return 0, nil
}
