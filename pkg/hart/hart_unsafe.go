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
	"unsafe"
)

// currentSlot holds the hart's current-task pointer. The slot is raw on
// purpose: it keeps no reference of its own, exactly like a per-CPU
// pointer register. The task layer pairs every publish with an explicit
// reference exchange.
type currentSlot struct {
	p unsafe.Pointer
}

// CurrentTask returns the pointer in the hart's current-task slot, which
// may be nil.
//
//go:nosplit
func (h *Hart) CurrentTask() unsafe.Pointer {
	return atomic.LoadPointer(&h.current.p)
}

// ExchangeCurrentTask publishes ptr in the current-task slot and returns
// the previous value.
//
//go:nosplit
func (h *Hart) ExchangeCurrentTask(ptr unsafe.Pointer) unsafe.Pointer {
	return atomic.SwapPointer(&h.current.p, ptr)
}
