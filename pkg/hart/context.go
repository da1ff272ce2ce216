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
	"rvisor.dev/rvisor/pkg/metric"
)

var contextSwitchCount = metric.MustCreateNewUint64Metric("rvisor_hart_context_switches_total",
	"Number of context switches across all harts.")

// EntryFunc is the code a fresh task context begins executing. It must
// not return; a task leaves by exiting or by switching away forever.
type EntryFunc func(h *Hart)

// TaskContext is the execution state of a task while it is off-hart. On
// hardware this is the callee-saved registers; here the suspended
// computation is a parked goroutine and the context holds the gate that
// parks and resumes it, plus the register values a real switch would
// save and restore.
type TaskContext struct {
	// Sp is the kernel stack pointer to run on.
	Sp uint64

	// Tp is the thread pointer installed when the context runs.
	Tp uint64

	entry   EntryFunc
	gate    chan struct{}
	started bool
}

// Init prepares a context to begin execution at entry on the given kernel
// stack, with the given thread pointer. Any previously suspended state is
// abandoned.
func (c *TaskContext) Init(entry EntryFunc, sp uintptr, tls uint64) {
	c.entry = entry
	c.Sp = uint64(sp)
	c.Tp = tls
	c.gate = make(chan struct{})
	c.started = false
}

// Adopt marks the context as already running on the calling goroutine,
// creating the park gate if the context was never initialized. Used for
// the boot task, which is entered directly rather than through a switch.
func (c *TaskContext) Adopt() {
	if c.started {
		panic("hart: adopting a running context")
	}
	if c.gate == nil {
		c.gate = make(chan struct{})
	}
	c.started = true
}

// ContextSwitch suspends the calling task and resumes next on the hart.
// The call returns when a later switch selects prev again. A context that
// has never run starts at its entry function.
//
// The caller must be the goroutine owning prev. Switching a context to
// itself is a no-op.
func (h *Hart) ContextSwitch(prev, next *TaskContext) {
	if prev == next {
		return
	}
	if prev.gate == nil || next.gate == nil {
		panic("hart: context switch with an uninitialized context")
	}
	h.switches.Add(1)
	contextSwitchCount.Increment()
	prev.Tp = h.ReadThreadPointer()
	h.WriteThreadPointer(next.Tp)
	if !next.started {
		next.started = true
		go func() {
			<-next.gate
			next.entry(h)
			panic("hart: task entry returned")
		}()
	}
	next.gate <- struct{}{}
	<-prev.gate
}
