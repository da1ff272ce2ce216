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
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"

	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/pagetables"
)

func newTestMachine(t *testing.T, harts int) *Machine {
	t.Helper()
	m, err := NewMachine(MachineOpts{Harts: harts})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	t.Cleanup(m.Destroy)
	return m
}

// mapUserPage allocates a frame, maps it user-accessible at va in a copy
// of the kernel tables, and installs those tables on the hart.
func mapUserPage(t *testing.T, m *Machine, h *Hart, va memaddr.VirtAddr, at memaddr.AccessType) (*pagetables.PageTables, memaddr.PhysAddr) {
	t.Helper()
	frame, err := m.MemoryFile.Allocate(memaddr.PageSize)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	pt := m.DupKernelPageDir()
	t.Cleanup(pt.Release)
	pt.Map(va, memaddr.PageSize, pagetables.MapOpts{AccessType: at, User: true}, frame)
	h.WritePageTableRoot(pt.RootPhysical())
	return pt, frame
}

func wantPanic(t *testing.T, want string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("got no panic, want panic containing %q", want)
			return
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, want) {
			t.Errorf("panic %q does not contain %q", msg, want)
		}
	}()
	f()
}

func TestIRQToggle(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	if h.IRQsEnabled() {
		t.Errorf("interrupts enabled at boot")
	}
	h.EnableIRQs()
	if !h.IRQsEnabled() {
		t.Errorf("IRQsEnabled got false after EnableIRQs")
	}
	h.DisableIRQs()
	if h.IRQsEnabled() {
		t.Errorf("IRQsEnabled got true after DisableIRQs")
	}
}

func TestWaitForIRQs(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	// A pending interrupt satisfies a later wait.
	h.PostIRQ()
	h.WaitForIRQs()

	// A wait in progress is woken by a post.
	var g errgroup.Group
	g.Go(func() error {
		h.WaitForIRQs()
		return nil
	})
	h.PostIRQ()
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// Posts coalesce: many posts satisfy one wait, and the line is clear
	// afterwards.
	h.PostIRQ()
	h.PostIRQ()
	h.PostIRQ()
	h.WaitForIRQs()
}

func TestSUMToggle(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	if h.SUMEnabled() {
		t.Errorf("SUM set at boot")
	}
	h.EnableSUM()
	if !h.SUMEnabled() {
		t.Errorf("SUMEnabled got false after EnableSUM")
	}
	if h.IRQsEnabled() {
		t.Errorf("EnableSUM touched SIE")
	}
	h.DisableSUM()
	if h.SUMEnabled() {
		t.Errorf("SUMEnabled got true after DisableSUM")
	}
}

func TestThreadPointer(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	h.WriteThreadPointer(0xdeadbeef)
	if got := h.ReadThreadPointer(); got != 0xdeadbeef {
		t.Errorf("ReadThreadPointer got %#x, want %#x", got, 0xdeadbeef)
	}
}

func TestTrapVectorBase(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	if got := h.TrapVectorBase(); got != KernelBase {
		t.Errorf("boot stvec got %#x, want %#x", got, KernelBase)
	}
	h.SetTrapVectorBase(KernelBase + 0x1000)
	if got := h.TrapVectorBase(); got != KernelBase+0x1000 {
		t.Errorf("TrapVectorBase got %#x, want %#x", got, KernelBase+0x1000)
	}
}

func TestWritePageTableRootIdempotent(t *testing.T) {
	m := newTestMachine(t, 1)
	h := m.Hart(0)

	root := h.ReadPageTableRoot()
	if root == 0 {
		t.Fatalf("no kernel root installed at boot")
	}
	flushes := h.TLBFlushes()
	h.WritePageTableRoot(root)
	if got := h.TLBFlushes(); got != flushes {
		t.Errorf("rewriting the installed root flushed the TLB (%d -> %d)", flushes, got)
	}

	pt := m.DupKernelPageDir()
	defer pt.Release()
	h.WritePageTableRoot(pt.RootPhysical())
	if got := h.ReadPageTableRoot(); got != pt.RootPhysical() {
		t.Errorf("ReadPageTableRoot got %#x, want %#x", got, pt.RootPhysical())
	}
	if got := h.TLBFlushes(); got != flushes+1 {
		t.Errorf("changing the root took %d flushes, want %d", got-flushes, 1)
	}
}

func TestWritePageTableRootUnalignedPanics(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)
	wantPanic(t, "unaligned page table root", func() {
		h.WritePageTableRoot(0x1234)
	})
}

func TestSecondaryHartsReuseKernelRoot(t *testing.T) {
	m := newTestMachine(t, 2)
	if got, want := m.Hart(1).ReadPageTableRoot(), m.Hart(0).ReadPageTableRoot(); got != want {
		t.Errorf("secondary hart root got %#x, want boot root %#x", got, want)
	}
	if got := m.Hart(1).TrapVectorBase(); got != KernelBase {
		t.Errorf("secondary hart stvec got %#x, want %#x", got, KernelBase)
	}
}

func TestTranslate(t *testing.T) {
	m := newTestMachine(t, 1)
	h := m.Hart(0)
	const va = memaddr.VirtAddr(0x400000)
	_, frame := mapUserPage(t, m, h, va, memaddr.ReadWrite)

	h.EnableSUM()
	defer h.DisableSUM()
	if got, want := h.Translate(va+0x123, memaddr.Read), frame+0x123; got != want {
		t.Errorf("Translate got %#x, want %#x", got, want)
	}
	if got, want := h.Translate(va, memaddr.Write), frame; got != want {
		t.Errorf("Translate got %#x, want %#x", got, want)
	}
	hits, misses := h.TLBStats()
	if misses != 1 {
		t.Errorf("two translations of one page walked %d times, want 1", misses)
	}
	if hits != 1 {
		t.Errorf("TLB hits got %d, want 1", hits)
	}
}

func TestTranslateUnmappedFaults(t *testing.T) {
	m := newTestMachine(t, 1)
	h := m.Hart(0)
	wantPanic(t, "not mapped", func() {
		h.Translate(0x400000, memaddr.Read)
	})
}

func TestTranslateProtectionFaults(t *testing.T) {
	m := newTestMachine(t, 1)
	h := m.Hart(0)
	const va = memaddr.VirtAddr(0x400000)
	mapUserPage(t, m, h, va, memaddr.Read)

	h.EnableSUM()
	defer h.DisableSUM()
	wantPanic(t, "protection violation", func() {
		h.Translate(va, memaddr.Write)
	})
}

func TestTranslateSUMFaults(t *testing.T) {
	m := newTestMachine(t, 1)
	h := m.Hart(0)
	const va = memaddr.VirtAddr(0x400000)
	mapUserPage(t, m, h, va, memaddr.ReadWrite)

	wantPanic(t, "SUM clear", func() {
		h.Translate(va, memaddr.Read)
	})

	// The same access works once SUM is set.
	h.EnableSUM()
	defer h.DisableSUM()
	h.Translate(va, memaddr.Read)
}

func TestTranslateStaleTLB(t *testing.T) {
	m := newTestMachine(t, 1)
	h := m.Hart(0)
	const va = memaddr.VirtAddr(0x400000)
	pt, frame := mapUserPage(t, m, h, va, memaddr.ReadWrite)

	h.EnableSUM()
	defer h.DisableSUM()
	h.Translate(va, memaddr.Read)

	// The tables change, but the cached entry keeps answering until the
	// page is flushed.
	pt.Unmap(va, memaddr.PageSize)
	if got, want := h.Translate(va, memaddr.Read), frame; got != want {
		t.Errorf("stale translation got %#x, want %#x", got, want)
	}
	h.FlushTLB(va)
	wantPanic(t, "not mapped", func() {
		h.Translate(va, memaddr.Read)
	})
}

func TestContextSwitch(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	var boot, task TaskContext
	boot.Init(nil, 0, 0)
	boot.Adopt()

	ran := false
	task.Init(func(h *Hart) {
		ran = true
		if got := h.ReadThreadPointer(); got != 7 {
			t.Errorf("task tp got %#x, want 7", got)
		}
		h.ContextSwitch(&task, &boot)
		t.Errorf("abandoned context resumed")
	}, 0x8000, 7)

	h.ContextSwitch(&boot, &task)
	if !ran {
		t.Fatalf("task entry never ran")
	}
	if got := h.ContextSwitches(); got != 2 {
		t.Errorf("ContextSwitches got %d, want 2", got)
	}
	if got := h.ReadThreadPointer(); got != 0 {
		t.Errorf("boot tp got %#x, want 0", got)
	}
}

func TestContextSwitchSelf(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	var boot TaskContext
	boot.Init(nil, 0, 0)
	boot.Adopt()

	before := h.ContextSwitches()
	h.ContextSwitch(&boot, &boot)
	if got := h.ContextSwitches(); got != before {
		t.Errorf("self switch counted (%d -> %d)", before, got)
	}
}

func TestSyscallDispatch(t *testing.T) {
	h := newTestMachine(t, 1).Hart(0)

	RegisterSyscallHandler(func(_ *Hart, tf *TrapFrame) uintptr {
		return uintptr(tf.A0 + tf.A1)
	})
	tf := NewUserTrapFrame(0x10000, 0x3ffffff000)
	tf.A0 = 30
	tf.A1 = 12
	h.Syscall(&tf)

	if tf.A0 != 42 {
		t.Errorf("a0 got %d, want 42", tf.A0)
	}
	if tf.OrigA0 != 30 {
		t.Errorf("orig a0 got %d, want 30", tf.OrigA0)
	}
	if tf.Sepc != 0x10004 {
		t.Errorf("sepc got %#x, want %#x", tf.Sepc, 0x10004)
	}
	if tf.Scause != ScauseECallUser {
		t.Errorf("scause got %d, want %d", tf.Scause, ScauseECallUser)
	}
}

func TestNewUserTrapFrame(t *testing.T) {
	tf := NewUserTrapFrame(0x10000, 0x3ffffff000)
	if tf.Sstatus&SstatusSPP != 0 {
		t.Errorf("user frame returns to supervisor mode")
	}
	if tf.Sstatus&SstatusSPIE == 0 {
		t.Errorf("user frame enters with interrupts disabled")
	}
	if tf.Sepc != 0x10000 || tf.Sp != 0x3ffffff000 {
		t.Errorf("frame got sepc=%#x sp=%#x", tf.Sepc, tf.Sp)
	}
}
