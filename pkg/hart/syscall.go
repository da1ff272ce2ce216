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
	"sync/atomic"

	"rvisor.dev/rvisor/pkg/metric"
)

var syscallCount = metric.MustCreateNewUint64Metric("rvisor_hart_syscalls_total",
	"Number of environment calls serviced across all harts.")

// SyscallHandler services environment calls. It receives the trapping
// hart and the task's trap frame and returns the raw a0 result (negated
// errnos included).
type SyscallHandler func(h *Hart, tf *TrapFrame) uintptr

var syscallHandler atomic.Pointer[SyscallHandler]

// RegisterSyscallHandler installs the kernel's environment-call entry
// point. The last registration wins.
func RegisterSyscallHandler(fn SyscallHandler) {
	if fn == nil {
		panic("hart: registering a nil syscall handler")
	}
	syscallHandler.Store(&fn)
}

// Syscall raises an environment call from user code described by tf, as
// the trap vector would see it: scause and the original a0 are recorded,
// the registered handler runs, its result lands in a0, and sepc steps
// over the ecall instruction.
func (h *Hart) Syscall(tf *TrapFrame) {
	fn := syscallHandler.Load()
	if fn == nil {
		panic("hart: no syscall handler registered")
	}
	syscallCount.Increment()
	tf.Scause = ScauseECallUser
	tf.OrigA0 = tf.A0
	tf.A0 = uint64((*fn)(h, tf))
	tf.Sepc += 4
}
