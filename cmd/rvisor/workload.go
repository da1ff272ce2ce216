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

package main

import (
	"bytes"
	"fmt"

	"rvisor.dev/rvisor/pkg/abi/linux"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/taskctx"
	"rvisor.dev/rvisor/pkg/usermem"
)

// Syscall numbers from the riscv64 table.
const (
	sysOpenat    = 56
	sysClose     = 57
	sysRead      = 63
	sysWrite     = 64
	sysExitGroup = 94
	sysUname     = 160
	sysGetpid    = 172
	sysBrk       = 214
	sysMmap      = 222
)

const (
	// initBrkBase is where the program break starts, as if a loader
	// had placed an image just below it.
	initBrkBase = 0x10000000

	// arenaSize is the scratch mapping init does all its work in. The
	// first page holds strings, the second the read buffer.
	arenaSize = 64 << 10

	readBufOffset = 4096
	readBufLen    = 1024
)

// runInit is the machine's init program. It is ordinary Go standing in
// for loaded code, but it follows the rules a real user program would:
// all of its data lives in user pages and the kernel is reached only
// through trap frames. It prints a boot banner, exercises the break,
// copies the given files to the console and exits.
func runInit(h *hart.Hart, si *taskctx.SchedInfo, paths []string) {
	tf := si.PtRegs()
	*tf = hart.NewUserTrapFrame(0, 0)

	// sys fills the argument registers, traps and returns a0. Returns
	// in the top range are negated errnos.
	sys := func(sysno uint64, args ...uint64) uint64 {
		regs := [...]*uint64{&tf.A0, &tf.A1, &tf.A2, &tf.A3, &tf.A4, &tf.A5}
		for i, reg := range regs {
			if i < len(args) {
				*reg = args[i]
			} else {
				*reg = 0
			}
		}
		tf.A7 = sysno
		h.Syscall(tf)
		return tf.A0
	}
	failed := func(ret uint64) bool {
		return int64(ret) < 0
	}

	// Carve out a scratch arena the way a libc would.
	arena := sys(sysMmap, 0, arenaSize,
		linux.PROT_READ|linux.PROT_WRITE,
		linux.MAP_PRIVATE|linux.MAP_ANONYMOUS,
		^uint64(0), 0)
	if failed(arena) {
		sys(sysExitGroup, 1)
	}

	// say copies msg into the arena and writes it to the console.
	say := func(format string, args ...any) {
		msg := fmt.Sprintf(format+"\n", args...)
		if _, err := usermem.CopyOut(h, memaddr.VirtAddr(arena), []byte(msg)); err != nil {
			sys(sysExitGroup, 1)
		}
		sys(sysWrite, 1, arena, uint64(len(msg)))
	}
	die := func(format string, args ...any) {
		say("init: "+format, args...)
		sys(sysExitGroup, 1)
	}

	if ret := sys(sysUname, arena); failed(ret) {
		die("uname failed with errno %d", -int64(ret))
	}
	uts := make([]byte, 6*(linux.UTSLen+1))
	if _, err := usermem.CopyIn(h, memaddr.VirtAddr(arena), uts); err != nil {
		die("reading utsname back: %v", err)
	}
	field := func(i int) string {
		b := uts[i*(linux.UTSLen+1) : (i+1)*(linux.UTSLen+1)]
		if n := bytes.IndexByte(b, 0); n >= 0 {
			b = b[:n]
		}
		return string(b)
	}
	say("init: booting on %s %s %s", field(0), field(2), field(4))

	// Grow the heap and touch the new pages.
	base := sys(sysBrk, 0)
	if got := sys(sysBrk, base+(64<<10)); got != base+(64<<10) {
		die("brk gave %#x, wanted %#x", got, base+(64<<10))
	}
	if _, err := usermem.CopyOut(h, memaddr.VirtAddr(base), []byte("heap")); err != nil {
		die("writing to the heap: %v", err)
	}

	for _, path := range paths {
		catFile(h, sys, die, arena, path)
	}

	pid := sys(sysGetpid)
	say("init: pid %d done", pid)
	sys(sysExitGroup, 0)
	panic("unreachable")
}

// catFile opens path relative to the current directory and copies its
// contents to the console, one bounce buffer at a time.
func catFile(h *hart.Hart, sys func(uint64, ...uint64) uint64, die func(string, ...any), arena uint64, path string) {
	if len(path)+1 > readBufOffset {
		die("path %q is too long", path)
	}
	if _, err := usermem.CopyOut(h, memaddr.VirtAddr(arena), append([]byte(path), 0)); err != nil {
		die("writing path %q: %v", path, err)
	}
	cwd := int64(linux.AT_FDCWD)
	fd := sys(sysOpenat, uint64(cwd), arena, linux.O_RDONLY, 0)
	if int64(fd) < 0 {
		die("open %s failed with errno %d", path, -int64(fd))
	}
	for {
		n := sys(sysRead, fd, arena+readBufOffset, readBufLen)
		if int64(n) < 0 {
			die("read %s failed with errno %d", path, -int64(n))
		}
		if n == 0 {
			break
		}
		sys(sysWrite, 1, arena+readBufOffset, n)
	}
	sys(sysClose, fd)
}
