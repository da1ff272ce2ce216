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
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/metric"
	"rvisor.dev/rvisor/pkg/pagetables"
)

var tlbFlushCount = metric.MustCreateNewUint64Metric("rvisor_hart_tlb_flushes_total",
	"Number of TLB flush operations across all harts.")

// tlbEntry caches one page translation, permissions included. A cached
// entry keeps answering until it is flushed, even if the underlying
// tables changed.
type tlbEntry struct {
	phys memaddr.PhysAddr
	opts pagetables.MapOpts
}

// FlushTLB invalidates the cached translation for the page containing
// addr, like sfence.vma with an address.
func (h *Hart) FlushTLB(addr memaddr.VirtAddr) {
	h.tlbMu.Lock()
	delete(h.tlb, addr.RoundDown())
	h.tlbMu.Unlock()
	h.tlbFlushes.Add(1)
	tlbFlushCount.Increment()
}

// FlushTLBAll invalidates every cached translation, like sfence.vma with
// no address.
func (h *Hart) FlushTLBAll() {
	h.tlbMu.Lock()
	clear(h.tlb)
	h.tlbMu.Unlock()
	h.tlbFlushes.Add(1)
	tlbFlushCount.Increment()
}

// TLBFlushes returns the number of flush operations the hart has taken.
func (h *Hart) TLBFlushes() uint64 {
	return h.tlbFlushes.Load()
}

// TLBStats returns the hart's translation hit and miss counts.
func (h *Hart) TLBStats() (hits, misses uint64) {
	return h.tlbHits.Load(), h.tlbMisses.Load()
}
