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

// Package hart models RV64 harts precisely enough to run a kernel's task
// and memory machinery on a host: supervisor CSRs, Sv39 translation with
// a real TLB, interrupt lines, and context switching. Physical addresses
// are host addresses, so translated user memory is directly addressable.
package hart

import (
	"fmt"

	"rvisor.dev/rvisor/pkg/atomicbitops"
	"rvisor.dev/rvisor/pkg/eventfd"
	"rvisor.dev/rvisor/pkg/log"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/metric"
	"rvisor.dev/rvisor/pkg/sync"
)

var (
	rootInstallCount = metric.MustCreateNewUint64Metric("rvisor_hart_root_installs_total",
		"Number of page table root installs, excluding rewrites of the installed root.")
	irqPostCount = metric.MustCreateNewUint64Metric("rvisor_hart_irqs_posted_total",
		"Number of interrupts posted to harts.")
)

// Hart is one RV64 hardware thread.
type Hart struct {
	id      int
	machine *Machine

	// Supervisor CSRs.
	sstatus atomicbitops.Uint64
	satp    atomicbitops.Uint64
	stvec   atomicbitops.Uint64
	tp      atomicbitops.Uint64

	// current is the per-hart current-task slot. The hart stores only a
	// raw pointer; ownership bookkeeping is the task layer's problem.
	current currentSlot

	// irq wakes WaitForIRQs. An eventfd rather than a channel so posted
	// interrupts coalesce the way a pending bit does.
	irq eventfd.Eventfd

	tlbMu sync.Mutex
	tlb   map[memaddr.VirtAddr]tlbEntry

	tlbFlushes atomicbitops.Uint64
	tlbHits    atomicbitops.Uint64
	tlbMisses  atomicbitops.Uint64
	switches   atomicbitops.Uint64
}

func newHart(m *Machine, id int) (*Hart, error) {
	irq, err := eventfd.Create()
	if err != nil {
		return nil, fmt.Errorf("creating irq line for hart%d: %w", id, err)
	}
	return &Hart{
		id:      id,
		machine: m,
		irq:     irq,
		tlb:     make(map[memaddr.VirtAddr]tlbEntry),
	}, nil
}

// ID returns the hart ID.
func (h *Hart) ID() int {
	return h.id
}

// setSstatus sets bits in sstatus.
func (h *Hart) setSstatus(bits uint64) {
	for {
		old := h.sstatus.Load()
		if old|bits == old || h.sstatus.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

// clearSstatus clears bits in sstatus.
func (h *Hart) clearSstatus(bits uint64) {
	for {
		old := h.sstatus.Load()
		if old&^bits == old || h.sstatus.CompareAndSwap(old, old&^bits) {
			return
		}
	}
}

// Sstatus returns the raw sstatus CSR.
func (h *Hart) Sstatus() uint64 {
	return h.sstatus.Load()
}

// EnableIRQs allows interrupt delivery.
func (h *Hart) EnableIRQs() {
	h.setSstatus(SstatusSIE)
}

// DisableIRQs blocks interrupt delivery.
func (h *Hart) DisableIRQs() {
	h.clearSstatus(SstatusSIE)
}

// IRQsEnabled returns true iff interrupts are enabled.
func (h *Hart) IRQsEnabled() bool {
	return h.sstatus.Load()&SstatusSIE != 0
}

// PostIRQ makes an interrupt pending on the hart, waking WaitForIRQs.
func (h *Hart) PostIRQ() {
	if err := h.irq.Notify(); err != nil {
		panic(fmt.Sprintf("hart%d: posting irq: %v", h.id, err))
	}
	irqPostCount.Increment()
}

// WaitForIRQs stalls the hart until an interrupt is pending, like wfi.
// Pending interrupts posted since the last wait return immediately, and
// any number of posts satisfy a single wait.
func (h *Hart) WaitForIRQs() {
	if err := h.irq.Wait(); err != nil {
		panic(fmt.Sprintf("hart%d: waiting for irqs: %v", h.id, err))
	}
}

// Halt parks the hart with interrupts disabled until the next posted
// interrupt.
func (h *Hart) Halt() {
	h.DisableIRQs()
	h.WaitForIRQs()
}

// EnableSUM permits supervisor access to user pages.
func (h *Hart) EnableSUM() {
	h.setSstatus(SstatusSUM)
}

// DisableSUM forbids supervisor access to user pages.
func (h *Hart) DisableSUM() {
	h.clearSstatus(SstatusSUM)
}

// SUMEnabled returns true iff supervisor access to user pages is
// permitted.
func (h *Hart) SUMEnabled() bool {
	return h.sstatus.Load()&SstatusSUM != 0
}

// ReadThreadPointer returns the hart's tp register.
func (h *Hart) ReadThreadPointer() uint64 {
	return h.tp.Load()
}

// WriteThreadPointer sets the hart's tp register.
func (h *Hart) WriteThreadPointer(v uint64) {
	h.tp.Store(v)
}

// SetTrapVectorBase points stvec at the trap entry.
func (h *Hart) SetTrapVectorBase(addr memaddr.VirtAddr) {
	h.stvec.Store(uint64(addr))
}

// TrapVectorBase returns the stvec CSR.
func (h *Hart) TrapVectorBase() memaddr.VirtAddr {
	return memaddr.VirtAddr(h.stvec.Load())
}

// ReadPageTableRoot returns the physical root installed in satp.
func (h *Hart) ReadPageTableRoot() memaddr.PhysAddr {
	return memaddr.PhysAddr(h.satp.Load()&satpPPNMask) << memaddr.PageShift
}

// WritePageTableRoot installs a new translation root. Writing the root
// already installed is a no-op; an actual change flushes the TLB.
func (h *Hart) WritePageTableRoot(root memaddr.PhysAddr) {
	if !root.IsPageAligned() {
		panic(fmt.Sprintf("hart%d: unaligned page table root %#x", h.id, root))
	}
	if h.ReadPageTableRoot() == root {
		return
	}
	log.Debugf("hart%d: installing page table root %#x", h.id, root)
	h.satp.Store(SatpModeSv39 | uint64(root)>>memaddr.PageShift)
	rootInstallCount.Increment()
	h.FlushTLBAll()
}

// SATP returns the raw satp CSR.
func (h *Hart) SATP() uint64 {
	return h.satp.Load()
}

// ContextSwitches returns the number of context switches taken on the
// hart.
func (h *Hart) ContextSwitches() uint64 {
	return h.switches.Load()
}
