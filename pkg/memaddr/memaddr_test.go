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

package memaddr

import "testing"

func TestRounding(t *testing.T) {
	for _, tc := range []struct {
		addr     VirtAddr
		down, up VirtAddr
	}{
		{0, 0, 0},
		{1, 0, PageSize},
		{PageSize - 1, 0, PageSize},
		{PageSize, PageSize, PageSize},
		{PageSize + 1, PageSize, 2 * PageSize},
	} {
		if got := tc.addr.RoundDown(); got != tc.down {
			t.Errorf("RoundDown(%#x) = %#x, want %#x", tc.addr, got, tc.down)
		}
		up, ok := tc.addr.RoundUp()
		if !ok || up != tc.up {
			t.Errorf("RoundUp(%#x) = (%#x, %t), want (%#x, true)", tc.addr, up, ok, tc.up)
		}
	}
}

func TestRoundUpWraps(t *testing.T) {
	if up, ok := VirtAddr(^uintptr(0) - 1).RoundUp(); ok {
		t.Errorf("RoundUp near the top of the address space gave %#x, want a wrap", up)
	}
}

func TestAddLength(t *testing.T) {
	end, ok := VirtAddr(0x1000).AddLength(0x234)
	if !ok || end != 0x1234 {
		t.Errorf("AddLength = (%#x, %t), want (0x1234, true)", end, ok)
	}
	if end, ok := (^VirtAddr(0) - 10).AddLength(11); ok {
		t.Errorf("overflowing AddLength gave %#x, want a wrap", end)
	}
	if _, ok := VirtAddr(0).AddLength(0); !ok {
		t.Error("AddLength(0, 0) reported a wrap")
	}
}

func TestAlignment(t *testing.T) {
	if got := AlignUp(100, 16); got != 112 {
		t.Errorf("AlignUp(100, 16) = %d, want 112", got)
	}
	if got := AlignDown(100, 16); got != 96 {
		t.Errorf("AlignDown(100, 16) = %d, want 96", got)
	}
	if got := AlignUp(96, 16); got != 96 {
		t.Errorf("AlignUp(96, 16) = %d, want 96", got)
	}
	if !VirtAddr(0x4000).IsPageAligned() || VirtAddr(0x4001).IsPageAligned() {
		t.Error("IsPageAligned misjudged a boundary")
	}
	if !VirtAddr(0x40).IsAligned(16) || VirtAddr(0x41).IsAligned(16) {
		t.Error("IsAligned misjudged a 16 byte boundary")
	}
}

func TestAccessType(t *testing.T) {
	if NoAccess.Any() {
		t.Error("NoAccess.Any() is true")
	}
	if !ReadWrite.SupersetOf(Read) {
		t.Error("ReadWrite does not contain Read")
	}
	if Read.SupersetOf(ReadWrite) {
		t.Error("Read contains ReadWrite")
	}
	if got := Read.Union(Execute); got != ReadExecute {
		t.Errorf("Read|Execute = %+v, want %+v", got, ReadExecute)
	}
}
