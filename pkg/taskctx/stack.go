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
	"fmt"

	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/memutil"
)

// DefaultStackSize is the kernel stack size given to tasks.
const DefaultStackSize = 32 * memaddr.PageSize

// TaskStack is a task's kernel stack: an owned, fixed-size allocation
// whose top anchors the trap frame. Stacks come from host mappings, so
// the base is page-aligned, well past the 16 bytes the ABI demands.
type TaskStack struct {
	data []byte
}

// NewStack allocates a kernel stack. The size is rounded up to whole
// pages. Allocation failure is fatal.
func NewStack(size uintptr) *TaskStack {
	size = memaddr.AlignUp4K(size)
	data, err := memutil.MapAnonSlice(size)
	if err != nil {
		panic(fmt.Sprintf("taskctx: allocating %d-byte kernel stack: %v", size, err))
	}
	return &TaskStack{data: data}
}

// Base returns the lowest address of the stack.
func (s *TaskStack) Base() uintptr {
	if s.data == nil {
		panic("taskctx: use of a released kernel stack")
	}
	return memutil.SlicePtr(s.data)
}

// Size returns the stack size in bytes.
func (s *TaskStack) Size() uintptr {
	return uintptr(len(s.data))
}

// Top returns the address one past the highest byte, where the stack
// begins growing down from.
func (s *TaskStack) Top() uintptr {
	return s.Base() + s.Size()
}

// Release frees the stack. Releasing twice is fatal.
func (s *TaskStack) Release() {
	if s.data == nil {
		panic("taskctx: kernel stack released twice")
	}
	if err := memutil.UnmapSlice(s.data); err != nil {
		panic(fmt.Sprintf("taskctx: releasing kernel stack: %v", err))
	}
	s.data = nil
}
