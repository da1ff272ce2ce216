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

// Package taskctx provides task control blocks and the machinery that
// moves tasks on and off harts: kernel stacks, the per-hart current-task
// view, and address space switching.
package taskctx

import (
	"rvisor.dev/rvisor/pkg/atomicbitops"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/mm"
	"rvisor.dev/rvisor/pkg/refs"
)

// lastPID feeds AllocPID.
var lastPID atomicbitops.Uint64

// AllocPID returns a fresh nonzero task ID.
func AllocPID() uint64 {
	return lastPID.Add(1)
}

// SchedInfo is a task control block. It is reference counted: the
// per-hart current slot holds a reference while the task is current, and
// the block tears down its stack and address space user when the last
// reference drops.
//
// The saved execution context is mutated only while the task is off
// hart; the scheduler owning the switch guarantees that.
type SchedInfo struct {
	refs refs.Refs

	pid  uint64
	tgid uint64

	// pgd is the task's address space, shared across the thread group.
	// Nil for pure kernel tasks, which borrow whatever is active.
	pgd *mm.AddressSpace

	// mmID is the identity of pgd, zero when unbound. activeMMID is the
	// identity of the space actually installed while the task runs,
	// which differs for kernel tasks running on a borrowed space.
	mmID       atomicbitops.Uint64
	activeMMID atomicbitops.Uint64

	// entry runs once on first entry, then is gone.
	entry func()

	kstack *TaskStack

	ctx hart.TaskContext

	exited   atomicbitops.Bool
	exitCode atomicbitops.Int64
	done     chan struct{}
}

// NewSchedInfo returns a task control block for a new thread group: the
// task leads its own group, so tgid == pid. It has no address space, no
// kernel stack, and a zero execution context until Reset arms it.
func NewSchedInfo(pid uint64) *SchedInfo {
	si := &SchedInfo{
		pid:  pid,
		tgid: pid,
		done: make(chan struct{}),
	}
	si.refs.InitRefs()
	return si
}

// Dup returns a block for a forked child with the given fresh pid. The
// child is built like NewSchedInfo(pid), so it leads its own thread
// group, then given a fresh default kernel stack and a share of the
// parent's address space. Both mm ids, the context and the entry start
// clean; the scheduler binds the ids when it takes the child on.
func (si *SchedInfo) Dup(pid uint64) *SchedInfo {
	child := NewSchedInfo(pid)
	child.kstack = NewStack(DefaultStackSize)
	if si.pgd != nil {
		si.pgd.IncUsers()
		child.pgd = si.pgd
	}
	return child
}

// PID returns the task ID.
func (si *SchedInfo) PID() uint64 {
	return si.pid
}

// TGID returns the thread group ID.
func (si *SchedInfo) TGID() uint64 {
	return si.tgid
}

// AddressSpace returns the task's address space, nil for kernel tasks.
func (si *SchedInfo) AddressSpace() *mm.AddressSpace {
	return si.pgd
}

// SetAddressSpace binds the task to an address space, taking a user
// share. The task must not be bound already.
func (si *SchedInfo) SetAddressSpace(as *mm.AddressSpace) {
	if si.pgd != nil {
		panic("taskctx: task already has an address space")
	}
	as.IncUsers()
	si.pgd = as
	si.mmID.Store(as.ID())
}

// MMID returns the identity of the task's own address space, zero when
// unbound.
func (si *SchedInfo) MMID() uint64 {
	return si.mmID.Load()
}

// SetMMID binds the identity of the task's own address space.
func (si *SchedInfo) SetMMID(id uint64) {
	si.mmID.Store(id)
}

// ActiveMMID returns the identity of the space installed while the task
// last ran.
func (si *SchedInfo) ActiveMMID() uint64 {
	return si.activeMMID.Load()
}

// SetActiveMMID records the identity of the installed space.
func (si *SchedInfo) SetActiveMMID(id uint64) {
	si.activeMMID.Store(id)
}

// Stack returns the task's kernel stack, nil before Reset.
func (si *SchedInfo) Stack() *TaskStack {
	return si.kstack
}

// Ctx returns the saved execution context for the switch path. Only
// valid to mutate while the task is off hart.
func (si *SchedInfo) Ctx() *hart.TaskContext {
	return &si.ctx
}

// Reset arms the task with a fresh default kernel stack and a one-shot
// entry: when the task first comes on hart it begins at entryFunc, which
// normally is TaskEntry, the trampoline that runs fn. The context's
// stack pointer starts at the trap frame, the way a return to user code
// expects.
func (si *SchedInfo) Reset(fn func(), entryFunc hart.EntryFunc, tls uint64) {
	if si.kstack != nil {
		si.kstack.Release()
	}
	si.kstack = NewStack(DefaultStackSize)
	si.entry = fn
	si.ctx.Init(entryFunc, si.ptRegsAddr(), tls)
}

// TakeEntry removes and returns the one-shot entry closure.
func (si *SchedInfo) TakeEntry() func() {
	fn := si.entry
	si.entry = nil
	return fn
}

// Exited returns true once the task has exited.
func (si *SchedInfo) Exited() bool {
	return si.exited.Load()
}

// ExitCode returns the code passed to Exit. Only meaningful after
// Exited.
func (si *SchedInfo) ExitCode() int32 {
	return int32(si.exitCode.Load())
}

// Done is closed when the task exits.
func (si *SchedInfo) Done() <-chan struct{} {
	return si.done
}

// IncRef adds a reference.
func (si *SchedInfo) IncRef() {
	si.refs.IncRef()
}

// DecRef drops a reference, tearing the block down at zero: the stack is
// released and the address space loses a user.
func (si *SchedInfo) DecRef() {
	si.refs.DecRef(func() {
		if si.pgd != nil {
			si.pgd.DecUsers()
			si.pgd = nil
		}
		if si.kstack != nil {
			si.kstack.Release()
			si.kstack = nil
		}
	})
}

// ptRegsAddr returns the trap frame address: the aligned TrapFrameSize
// offset below the stack top.
func (si *SchedInfo) ptRegsAddr() uintptr {
	if si.kstack == nil {
		panic("taskctx: task has no kernel stack")
	}
	return si.kstack.Top() - memaddr.AlignDown(hart.TrapFrameSize, hart.StackAlign)
}
