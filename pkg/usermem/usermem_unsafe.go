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

package usermem

import (
	"unsafe"

	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
)

// hostPage returns the host bytes backing addr, up to the end of its page.
// The caller must hold SUM while the slice is in use.
func hostPage(h *hart.Hart, addr memaddr.VirtAddr, at memaddr.AccessType) []byte {
	phys := h.Translate(addr, at)
	n := memaddr.PageSize - addr.PageOffset()
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(phys))), n)
}
