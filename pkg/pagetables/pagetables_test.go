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

package pagetables

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"rvisor.dev/rvisor/pkg/memaddr"
)

type mapping struct {
	start    memaddr.VirtAddr
	length   uintptr
	physical memaddr.PhysAddr
	opts     MapOpts
}

// checkMappings walks the tables and compares the coalesced leaf mappings
// against want.
func checkMappings(t *testing.T, pt *PageTables, want []mapping) {
	t.Helper()
	var got []mapping
	for _, half := range [][2]memaddr.VirtAddr{{0, lowerTop}, {upperBottom, ^memaddr.VirtAddr(0)}} {
		pt.walkRange(half[0], half[1], false, func(va memaddr.VirtAddr, pte *PTE) {
			if !pte.Valid() {
				return
			}
			if n := len(got); n > 0 {
				last := &got[n-1]
				if last.start+memaddr.VirtAddr(last.length) == va &&
					last.physical+memaddr.PhysAddr(last.length) == pte.Address() &&
					last.opts == pte.Opts() {
					last.length += memaddr.PageSize
					return
				}
			}
			got = append(got, mapping{va, memaddr.PageSize, pte.Address(), pte.Opts()})
		})
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(mapping{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

func userRW() MapOpts {
	return MapOpts{AccessType: memaddr.ReadWrite, User: true}
}

func TestAllocFree(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	pt.Release()
}

func TestUnmap(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	pt.Map(0x400000, 2*memaddr.PageSize, userRW(), 0x555000)
	if prev := pt.Unmap(0x400000, 2*memaddr.PageSize); !prev {
		t.Errorf("Unmap got prev=false, want true")
	}
	checkMappings(t, pt, nil)
	if !pt.IsEmpty() {
		t.Errorf("IsEmpty got false, want true")
	}
}

func TestReadOnly(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	pt.Map(0x400000, memaddr.PageSize, MapOpts{AccessType: memaddr.Read, User: true}, 0x555000)
	checkMappings(t, pt, []mapping{
		{0x400000, memaddr.PageSize, 0x555000, MapOpts{AccessType: memaddr.Read, User: true}},
	})
}

func TestReadWrite(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	pt.Map(0x400000, memaddr.PageSize, userRW(), 0x555000)
	checkMappings(t, pt, []mapping{
		{0x400000, memaddr.PageSize, 0x555000, userRW()},
	})
}

func TestSeparateTables(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	pt.Map(0x398000, memaddr.PageSize, userRW(), 0x555000)
	pt.Map(0x40000000, memaddr.PageSize, userRW(), 0x666000)
	pt.Map(upperBottom, memaddr.PageSize, MapOpts{AccessType: memaddr.ReadExecute, Global: true}, 0x777000)
	checkMappings(t, pt, []mapping{
		{0x398000, memaddr.PageSize, 0x555000, userRW()},
		{0x40000000, memaddr.PageSize, 0x666000, userRW()},
		{upperBottom, memaddr.PageSize, 0x777000, MapOpts{AccessType: memaddr.ReadExecute, Global: true}},
	})
}

func TestMapReturnsPrev(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	if prev := pt.Map(0x400000, memaddr.PageSize, userRW(), 0x555000); prev {
		t.Errorf("first Map got prev=true, want false")
	}
	if prev := pt.Map(0x400000, memaddr.PageSize, userRW(), 0x555000); prev {
		t.Errorf("identical Map got prev=true, want false")
	}
	if prev := pt.Map(0x400000, memaddr.PageSize, userRW(), 0x666000); !prev {
		t.Errorf("Map with new physical got prev=false, want true")
	}
	if prev := pt.Map(0x400000, memaddr.PageSize, MapOpts{AccessType: memaddr.Read, User: true}, 0x666000); !prev {
		t.Errorf("Map with new opts got prev=false, want true")
	}
}

func TestMapNoAccessUnmaps(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	pt.Map(0x400000, memaddr.PageSize, userRW(), 0x555000)
	pt.Map(0x400000, memaddr.PageSize, MapOpts{User: true}, 0x555000)
	checkMappings(t, pt, nil)
}

func TestLookup(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	pt.Map(0x400000, 2*memaddr.PageSize, userRW(), 0x555000)

	phys, opts, ok := pt.Lookup(0x401234)
	if !ok {
		t.Fatalf("Lookup(%#x) got ok=false, want true", 0x401234)
	}
	if want := memaddr.PhysAddr(0x556234); phys != want {
		t.Errorf("Lookup physical got %#x, want %#x", phys, want)
	}
	if want := userRW(); opts != want {
		t.Errorf("Lookup opts got %+v, want %+v", opts, want)
	}
	if _, _, ok := pt.Lookup(0x402000); ok {
		t.Errorf("Lookup past the mapping got ok=true, want false")
	}
}

func TestClone(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	pt.Map(0x400000, 2*memaddr.PageSize, userRW(), 0x555000)
	pt.Map(upperBottom, memaddr.PageSize, MapOpts{AccessType: memaddr.ReadExecute, Global: true}, 0x777000)

	np := pt.Clone()
	defer np.Release()
	checkMappings(t, np, []mapping{
		{0x400000, 2 * memaddr.PageSize, 0x555000, userRW()},
		{upperBottom, memaddr.PageSize, 0x777000, MapOpts{AccessType: memaddr.ReadExecute, Global: true}},
	})

	// The clone is independent of the original.
	np.Unmap(0x400000, 2*memaddr.PageSize)
	if _, _, ok := pt.Lookup(0x400000); !ok {
		t.Errorf("original lost a mapping after the clone unmapped it")
	}
}

func TestReleaseReturnsTables(t *testing.T) {
	a := NewRuntimeAllocator()
	pt := New(a)
	pt.Map(0x400000, memaddr.PageSize, userRW(), 0x555000)
	pt.Release()

	a.mu.Lock()
	pooled := len(a.pool)
	a.mu.Unlock()
	if pooled != levels {
		t.Errorf("pool holds %d tables after Release, want %d", pooled, levels)
	}

	// Pooled tables come back zeroed.
	np := New(a)
	defer np.Release()
	if !np.IsEmpty() {
		t.Errorf("tables built from the pool are not empty")
	}
}

func TestSATP(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	satp := pt.SATP()
	if satp>>60 != 8 {
		t.Errorf("satp mode got %d, want 8 (Sv39)", satp>>60)
	}
	if got := memaddr.PhysAddr(satp<<20>>20) << memaddr.PageShift; got != pt.RootPhysical() {
		t.Errorf("satp PPN got %#x, want %#x", got, pt.RootPhysical())
	}
}

func TestMapUnalignedPanics(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	defer func() {
		if recover() == nil {
			t.Errorf("Map with an unaligned address did not panic")
		}
	}()
	pt.Map(0x400001, memaddr.PageSize, userRW(), 0x555000)
}

func TestMapNonCanonicalPanics(t *testing.T) {
	pt := New(NewRuntimeAllocator())
	defer pt.Release()

	defer func() {
		if recover() == nil {
			t.Errorf("Map outside the canonical halves did not panic")
		}
	}()
	pt.Map(lowerTop, memaddr.PageSize, userRW(), 0x555000)
}
