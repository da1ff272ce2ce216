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

	"rvisor.dev/rvisor/pkg/cleanup"
	"rvisor.dev/rvisor/pkg/log"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/pagetables"
	"rvisor.dev/rvisor/pkg/pgalloc"
	"rvisor.dev/rvisor/pkg/sync"
)

// MachineOpts configures a Machine.
type MachineOpts struct {
	// Harts is the number of harts. Zero means one.
	Harts int
}

// Machine is a set of harts sharing page table memory, the physical page
// arena, and the kernel translation root.
type Machine struct {
	// Allocator backs page table nodes for every address space on the
	// machine.
	Allocator *pagetables.RuntimeAllocator

	// MemoryFile backs user pages.
	MemoryFile *pgalloc.MemoryFile

	harts []*Hart

	mu       sync.Mutex
	kernelPT *pagetables.PageTables
}

// NewMachine brings up the harts and the kernel page tables. The boot
// hart has the kernel root installed; secondary harts reuse it.
func NewMachine(opts MachineOpts) (*Machine, error) {
	n := opts.Harts
	if n == 0 {
		n = 1
	}
	m := &Machine{
		Allocator:  pagetables.NewRuntimeAllocator(),
		MemoryFile: pgalloc.NewMemoryFile(),
	}
	cu := cleanup.Make(func() { m.MemoryFile.Destroy() })
	defer cu.Clean()
	for i := 0; i < n; i++ {
		h, err := newHart(m, i)
		if err != nil {
			return nil, fmt.Errorf("bringing up hart%d: %w", i, err)
		}
		cu.Add(func() { h.irq.Close() })
		m.harts = append(m.harts, h)
	}

	m.setupKernelPageTable(m.harts[0])
	for _, h := range m.harts[1:] {
		m.ReuseKernelPageTable(h)
	}
	log.Infof("machine up with %d hart(s), kernel root %#x", n, m.kernelPT.RootPhysical())

	cu.Release()
	return m, nil
}

// Harts returns the number of harts.
func (m *Machine) Harts() int {
	return len(m.harts)
}

// Hart returns hart i.
func (m *Machine) Hart(i int) *Hart {
	return m.harts[i]
}

// setupKernelPageTable builds the kernel tables and installs their root
// on the boot hart. Kernel code and data are host-native and never walk
// these tables; they exist to give satp a stable root and user address
// spaces a template to clone.
func (m *Machine) setupKernelPageTable(h *Hart) {
	m.kernelPT = pagetables.New(m.Allocator)
	h.WritePageTableRoot(m.kernelPT.RootPhysical())
	h.SetTrapVectorBase(KernelBase)
}

// ReuseKernelPageTable installs the kernel root on a secondary hart.
func (m *Machine) ReuseKernelPageTable(h *Hart) {
	m.mu.Lock()
	root := m.kernelPT.RootPhysical()
	m.mu.Unlock()
	h.WritePageTableRoot(root)
	h.SetTrapVectorBase(KernelBase)
}

// KernelPageTableRoot returns the kernel translation root.
func (m *Machine) KernelPageTableRoot() memaddr.PhysAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kernelPT.RootPhysical()
}

// DupKernelPageDir clones the kernel tables to seed a new address space.
func (m *Machine) DupKernelPageDir() *pagetables.PageTables {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kernelPT.Clone()
}

// Destroy releases machine resources. All task execution must have
// stopped.
func (m *Machine) Destroy() {
	for _, h := range m.harts {
		h.irq.Close()
	}
	m.kernelPT.Release()
	m.Allocator.Drain()
	m.MemoryFile.Destroy()
}
