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
)

// CurrentCtx is a borrowed view of a hart's current task. The view holds
// no reference of its own; the reference it mirrors is the one parked in
// the hart's current slot, so the view must not outlive the task's time
// as current.
type CurrentCtx struct {
	*SchedInfo
}

// PtrEq returns true iff the view refers to exactly that block.
func (c CurrentCtx) PtrEq(si *SchedInfo) bool {
	return c.SchedInfo == si
}

// TryGet returns the current task of the hart, if one is installed.
func TryGet(h *hart.Hart) (CurrentCtx, bool) {
	si := loadCurrent(h)
	return CurrentCtx{si}, si != nil
}

// Get returns the current task of the hart. It is fatal to ask before
// InitCurrent.
func Get(h *hart.Hart) CurrentCtx {
	c, ok := TryGet(h)
	if !ok {
		panic("taskctx: current sched info is uninitialized")
	}
	return c
}

// InitCurrent installs the boot task in the hart's empty current slot
// and adopts its execution context for the calling goroutine. The slot
// takes a reference.
func InitCurrent(h *hart.Hart, si *SchedInfo) {
	si.IncRef()
	if old := publishCurrent(h, si); old != nil {
		panic("taskctx: current task is already initialized")
	}
	si.ctx.Adopt()
	bootTasks.Store(h, si)
}

// SetCurrent moves the hart's current slot from prev to next, exchanging
// the slot's reference: prev loses the reference the slot held, next
// gains one. The caller's view of prev is dead afterwards.
func SetCurrent(h *hart.Hart, prev CurrentCtx, next *SchedInfo) {
	if prev.SchedInfo == nil {
		panic("taskctx: set_current without a current task")
	}
	next.IncRef()
	if old := publishCurrent(h, next); old != prev.SchedInfo {
		panic("taskctx: current task changed underfoot")
	}
	prev.SchedInfo.DecRef()
}
