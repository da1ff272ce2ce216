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
	"unsafe"

	"rvisor.dev/rvisor/pkg/hart"
)

// loadCurrent reads the hart's raw current-task slot.
func loadCurrent(h *hart.Hart) *SchedInfo {
	return (*SchedInfo)(h.CurrentTask())
}

// publishCurrent swaps si into the hart's raw current-task slot and
// returns the previous occupant. Reference accounting is the caller's.
func publishCurrent(h *hart.Hart, si *SchedInfo) *SchedInfo {
	return (*SchedInfo)(h.ExchangeCurrentTask(unsafe.Pointer(si)))
}

// PtRegs returns the task's trap frame, living at the aligned
// TrapFrameSize offset below the kernel stack top. It is fatal on a task
// with no stack.
func (si *SchedInfo) PtRegs() *hart.TrapFrame {
	return (*hart.TrapFrame)(unsafe.Pointer(si.ptRegsAddr()))
}
