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

// Package syscalls routes environment calls to their implementations.
//
// A Table maps raw syscall numbers, as a user program leaves them in a7,
// to entries in a subpackage such as syscalls/linux. Binding a table to
// the kernel's descriptor table yields the handler the hart traps into.
package syscalls

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"rvisor.dev/rvisor/pkg/errors"
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/fdtable"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/log"
	"rvisor.dev/rvisor/pkg/taskctx"
)

// Context carries the kernel objects a syscall implementation may touch.
type Context struct {
	// Hart is the hart the call trapped on.
	Hart *hart.Hart

	// Task is the task that made the call.
	Task taskctx.CurrentCtx

	// FDs is the descriptor table.
	FDs *fdtable.FDTable
}

// Fn implements one syscall. The raw return value lands in a0 when err
// is nil; otherwise a0 carries the negated errno.
type Fn func(ctx *Context, tf *hart.TrapFrame) (uintptr, error)

// Syscall is one table entry.
type Syscall struct {
	// Name is the syscall's Linux name.
	Name string

	// Fn is the implementation.
	Fn Fn

	// Note documents how the implementation strays from Linux.
	Note string
}

// Supported returns an entry for a fully implemented syscall.
func Supported(name string, fn Fn) Syscall {
	return Syscall{Name: name, Fn: fn}
}

// PartiallySupported returns an entry for a syscall with caveats.
func PartiallySupported(name string, fn Fn, note string) Syscall {
	return Syscall{Name: name, Fn: fn, Note: note}
}

// Table maps syscall numbers to implementations for one ABI.
type Table struct {
	// Name identifies the ABI, for example "riscv64".
	Name string

	fns map[uint64]Syscall

	// missing throttles complaints about numbers the table lacks, so a
	// program probing for features cannot flood the log.
	missing log.Logger
}

// NewTable returns a table serving fns.
func NewTable(name string, fns map[uint64]Syscall) *Table {
	return &Table{
		Name:    name,
		fns:     fns,
		missing: log.BasicRateLimitedLogger(time.Second),
	}
}

// Lookup returns the entry for sysno.
func (t *Table) Lookup(sysno uint64) (Syscall, bool) {
	sc, ok := t.fns[sysno]
	return sc, ok
}

// Handler binds the table to the kernel's descriptor table and returns
// the function the hart invokes on an environment call.
func (t *Table) Handler(fds *fdtable.FDTable) hart.SyscallHandler {
	return func(h *hart.Hart, tf *hart.TrapFrame) uintptr {
		sc, ok := t.fns[tf.A7]
		if !ok {
			t.missing.Warningf("unknown syscall %d on %s, returning ENOSYS", tf.A7, t.Name)
			return errorReturn(linuxerr.ENOSYS)
		}
		if log.IsLogging(log.Debug) {
			log.Debugf("hart%d: %s(%#x, %#x, %#x)", h.ID(), sc.Name, tf.A0, tf.A1, tf.A2)
		}
		ctx := Context{Hart: h, Task: taskctx.Get(h), FDs: fds}
		res, err := sc.Fn(&ctx, tf)
		if err != nil {
			return errorReturn(err)
		}
		return res
	}
}

// ExtractErrno unwraps the errno a syscall error carries. Errors that do
// not map to an errno cannot reach user code and are fatal.
func ExtractErrno(err error) int {
	switch err := err.(type) {
	case *errors.Error:
		return int(err.Errno())
	case unix.Errno:
		return int(err)
	}
	panic(fmt.Sprintf("syscalls: invalid syscall error %v (%T)", err, err))
}

func errorReturn(err error) uintptr {
	return uintptr(-ExtractErrno(err))
}
