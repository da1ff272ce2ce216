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

package taskctx

import (
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/log"
	"rvisor.dev/rvisor/pkg/mm"
	"rvisor.dev/rvisor/pkg/sync"
)

// bootTasks records the task InitCurrent installed on each hart. Exiting
// tasks hand control back to it.
var bootTasks sync.Map // *hart.Hart -> *SchedInfo

// SwitchMM installs next's translation root on the hart unless that
// space is active already. prevID is the identity of the active space,
// nextID of the target; equal identities make the call a no-op without
// touching satp or the TLB.
func SwitchMM(h *hart.Hart, prevID, nextID uint64, next *mm.AddressSpace) {
	if prevID == nextID {
		return
	}
	h.WritePageTableRoot(next.Root())
}

// Switch moves the hart from prev to next: current-task slot, then
// address space, then the execution context. The slot exchange completes
// before the mm switch reads next's identity, and the mm switch completes
// before control transfers, so next never runs on prev's translation.
// Interrupts stay masked from here until the far side unmasks them,
// fresh tasks through TaskEntry and resumed tasks by this function
// restoring what they had. Switch returns when a later switch brings
// prev back. The caller must be running prev.
func Switch(h *hart.Hart, prev, next *SchedInfo) {
	irqsOn := h.IRQsEnabled()
	h.DisableIRQs()

	prevActive := prev.ActiveMMID()
	SetCurrent(h, CurrentCtx{prev}, next)
	if as := next.AddressSpace(); as != nil {
		SwitchMM(h, prevActive, next.MMID(), as)
		next.activeMMID.Store(next.MMID())
	} else {
		// Kernel tasks borrow whatever space is installed.
		next.activeMMID.Store(prevActive)
	}
	h.ContextSwitch(&prev.ctx, &next.ctx)

	if irqsOn {
		h.EnableIRQs()
	}
}

// TaskEntry is the trampoline fresh tasks start at: it picks up the
// current task, enables interrupts the way a switch return path would,
// and runs the one-shot entry closure. The closure must leave the hart
// by exiting or switching away; coming back here is fatal.
func TaskEntry(h *hart.Hart) {
	c := Get(h)
	h.EnableIRQs()
	if fn := c.TakeEntry(); fn != nil {
		fn()
	}
	Exit(h, 0)
}

// Exit ends the calling task with the given code and hands the hart back
// to its boot task. It does not return.
func Exit(h *hart.Hart, code int32) {
	c := Get(h)
	v, ok := bootTasks.Load(h)
	if !ok {
		panic("taskctx: exit with no boot task to return to")
	}
	boot := v.(*SchedInfo)
	if c.PtrEq(boot) {
		panic("taskctx: boot task exited")
	}

	log.Debugf("task %d exiting with code %d", c.PID(), code)
	c.exitCode.Store(int64(code))
	c.exited.Store(true)
	close(c.done)

	Switch(h, c.SchedInfo, boot)
	panic("taskctx: exited task resumed")
}
