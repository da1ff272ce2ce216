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

package linux

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"rvisor.dev/rvisor/pkg/abi/linux"
	"rvisor.dev/rvisor/pkg/console"
	"rvisor.dev/rvisor/pkg/errors"
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/fdtable"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/mm"
	"rvisor.dev/rvisor/pkg/taskctx"
	"rvisor.dev/rvisor/pkg/usermem"
)

// testEnv is a machine with one user task current on hart 0 and two
// pages of scratch user memory at buf.
type testEnv struct {
	h    *hart.Hart
	as   *mm.AddressSpace
	task *taskctx.SchedInfo
	fds  *fdtable.FDTable
	buf  memaddr.VirtAddr
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m, err := hart.NewMachine(hart.MachineOpts{})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	t.Cleanup(m.Destroy)
	h := m.Hart(0)

	as := mm.NewAddressSpace(m)
	t.Cleanup(as.DecUsers)
	task := taskctx.NewSchedInfo(taskctx.AllocPID())
	task.SetAddressSpace(as)
	t.Cleanup(task.DecRef)
	taskctx.InitCurrent(h, task)
	h.WritePageTableRoot(as.Root())

	fds := fdtable.New()
	t.Cleanup(fds.Close)
	hart.RegisterSyscallHandler(RV64.Handler(fds))

	buf, err := as.MMap(mm.MMapOpts{Length: 2 * memaddr.PageSize, Access: memaddr.ReadWrite})
	if err != nil {
		t.Fatalf("MMap scratch: %v", err)
	}
	return &testEnv{h: h, as: as, task: task, fds: fds, buf: buf}
}

// syscall raises sysno with up to six arguments and returns a0.
func (e *testEnv) syscall(t *testing.T, sysno uint64, args ...uint64) uint64 {
	t.Helper()
	tf := &hart.TrapFrame{A7: sysno, Sepc: 0x10000}
	regs := []*uint64{&tf.A0, &tf.A1, &tf.A2, &tf.A3, &tf.A4, &tf.A5}
	for i, a := range args {
		*regs[i] = a
	}
	e.h.Syscall(tf)
	return tf.A0
}

func (e *testEnv) copyOut(t *testing.T, addr memaddr.VirtAddr, b []byte) {
	t.Helper()
	if _, err := usermem.CopyOut(e.h, addr, b); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
}

func (e *testEnv) copyIn(t *testing.T, addr memaddr.VirtAddr, b []byte) {
	t.Helper()
	if _, err := usermem.CopyIn(e.h, addr, b); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
}

// errnoReturn is the a0 image of a failed syscall.
func errnoReturn(e *errors.Error) uint64 {
	return uint64(-int64(e.Errno()))
}

const atFDCWD = uint64(0xffffffffffffff9c) // AT_FDCWD sign-extended into a0

func TestUname(t *testing.T) {
	e := newTestEnv(t)
	if ret := e.syscall(t, 160, uint64(e.buf)); ret != 0 {
		t.Fatalf("uname returned %#x", ret)
	}

	out := make([]byte, 6*(linux.UTSLen+1))
	e.copyIn(t, e.buf, out)
	field := func(i int) string {
		b := out[i*(linux.UTSLen+1) : (i+1)*(linux.UTSLen+1)]
		if end := bytes.IndexByte(b, 0); end >= 0 {
			b = b[:end]
		}
		return string(b)
	}
	want := []string{"Linux", "host", "5.9.0-rc4+", "#1337 SMP Fri Mar 4 09:36:42 CST 2022", "riscv64", "(none)"}
	for i, w := range want {
		if got := field(i); got != w {
			t.Errorf("utsname field %d got %q, want %q", i, got, w)
		}
	}
}

func TestWriteIgnoresFD(t *testing.T) {
	e := newTestEnv(t)
	var sink bytes.Buffer
	prev := console.SetTarget(&sink)
	defer console.SetTarget(prev)

	e.copyOut(t, e.buf, []byte("hello\n"))
	if ret := e.syscall(t, 64, 99, uint64(e.buf), 6); ret != 6 {
		t.Fatalf("write returned %#x, want 6", ret)
	}
	if got := sink.String(); got != "hello\n" {
		t.Errorf("console received %q", got)
	}
}

func TestWritevGathers(t *testing.T) {
	e := newTestEnv(t)
	var sink bytes.Buffer
	prev := console.SetTarget(&sink)
	defer console.SetTarget(prev)

	e.copyOut(t, e.buf, []byte("abc"))
	e.copyOut(t, e.buf+100, []byte("defg"))

	iovs := make([]byte, 2*linux.IOVecSize)
	memaddr.ByteOrder.PutUint64(iovs[0:], uint64(e.buf))
	memaddr.ByteOrder.PutUint64(iovs[8:], 3)
	memaddr.ByteOrder.PutUint64(iovs[16:], uint64(e.buf+100))
	memaddr.ByteOrder.PutUint64(iovs[24:], 4)
	e.copyOut(t, e.buf+512, iovs)

	if ret := e.syscall(t, 66, 1, uint64(e.buf+512), 2); ret != 7 {
		t.Fatalf("writev returned %#x, want 7", ret)
	}
	if got := sink.String(); got != "abcdefg" {
		t.Errorf("console received %q, want %q", got, "abcdefg")
	}
}

func TestOpenReadClose(t *testing.T) {
	e := newTestEnv(t)

	content := make([]byte, 2000)
	for i := range content {
		content[i] = byte(i * 13)
	}
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e.copyOut(t, e.buf, append([]byte(path), 0))

	fd := e.syscall(t, 56, atFDCWD, uint64(e.buf), uint64(unix.O_RDONLY), 0)
	if fd != 3 {
		t.Fatalf("openat returned %#x, want fd 3", fd)
	}

	// The bounce buffer caps each read at 1024 bytes.
	dst := e.buf + memaddr.PageSize
	if ret := e.syscall(t, 63, fd, uint64(dst), 2000); ret != 1024 {
		t.Fatalf("first read returned %#x, want 1024", ret)
	}
	if ret := e.syscall(t, 63, fd, uint64(dst+1024), 2000); ret != 976 {
		t.Fatalf("second read returned %#x, want 976", ret)
	}
	if ret := e.syscall(t, 63, fd, uint64(dst), 2000); ret != 0 {
		t.Fatalf("read at EOF returned %#x", ret)
	}

	got := make([]byte, 2000)
	e.copyIn(t, dst, got)
	if !bytes.Equal(got, content) {
		t.Errorf("file bytes corrupted in transit")
	}

	if ret := e.syscall(t, 57, fd); ret != 0 {
		t.Fatalf("close returned %#x", ret)
	}
	if ret := e.syscall(t, 63, fd, uint64(dst), 16); ret != errnoReturn(linuxerr.EBADF) {
		t.Errorf("read on closed fd returned %#x, want -EBADF", ret)
	}
	if ret := e.syscall(t, 57, fd); ret != errnoReturn(linuxerr.EBADF) {
		t.Errorf("double close returned %#x, want -EBADF", ret)
	}
}

func TestOpenatRelative(t *testing.T) {
	e := newTestEnv(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leaf"), []byte("v"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	e.copyOut(t, e.buf, append([]byte(dir), 0))
	dirfd := e.syscall(t, 56, atFDCWD, uint64(e.buf), uint64(unix.O_RDONLY|unix.O_DIRECTORY), 0)
	if int64(dirfd) < 0 {
		t.Fatalf("openat dir returned %#x", dirfd)
	}

	e.copyOut(t, e.buf, []byte("leaf\x00"))
	fd := e.syscall(t, 56, dirfd, uint64(e.buf), uint64(unix.O_RDONLY), 0)
	if int64(fd) < 0 {
		t.Fatalf("openat relative returned %#x", fd)
	}
	if ret := e.syscall(t, 63, fd, uint64(e.buf+memaddr.PageSize), 16); ret != 1 {
		t.Errorf("read returned %#x, want 1", ret)
	}
}

func TestOpenatMissing(t *testing.T) {
	e := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "nope")
	e.copyOut(t, e.buf, append([]byte(path), 0))
	if ret := e.syscall(t, 56, atFDCWD, uint64(e.buf), uint64(unix.O_RDONLY), 0); ret != errnoReturn(linuxerr.ENOENT) {
		t.Errorf("openat returned %#x, want -ENOENT", ret)
	}
}

func TestReadlinkat(t *testing.T) {
	e := newTestEnv(t)
	if ret := e.syscall(t, 78, atFDCWD, uint64(e.buf), uint64(e.buf+512), 64); ret != ^uint64(0) {
		t.Errorf("readlinkat returned %#x, want all ones", ret)
	}
}

func TestFstatatZeroesBuffer(t *testing.T) {
	e := newTestEnv(t)
	statbuf := e.buf + 256
	e.copyOut(t, statbuf, bytes.Repeat([]byte{0xff}, sizeOfStat))

	if ret := e.syscall(t, 79, atFDCWD, uint64(e.buf), uint64(statbuf), 0); ret != 0 {
		t.Fatalf("fstatat returned %#x", ret)
	}
	got := make([]byte, sizeOfStat)
	e.copyIn(t, statbuf, got)
	for i, b := range got {
		if b != 0 {
			t.Fatalf("stat byte %d is %#x, want 0", i, b)
		}
	}
}

func TestGetpidGettid(t *testing.T) {
	e := newTestEnv(t)
	if ret := e.syscall(t, 172); ret != e.task.TGID() {
		t.Errorf("getpid returned %d, want %d", ret, e.task.TGID())
	}
	if ret := e.syscall(t, 178); ret != e.task.PID() {
		t.Errorf("gettid returned %d, want %d", ret, e.task.PID())
	}
}

func TestBrk(t *testing.T) {
	e := newTestEnv(t)
	e.as.SetBrk(0x10000000)

	base := e.syscall(t, 214, 0)
	if base != 0x10000000 {
		t.Fatalf("brk(0) returned %#x", base)
	}
	grown := e.syscall(t, 214, base+128<<10)
	if grown != base+128<<10 {
		t.Fatalf("brk grow returned %#x", grown)
	}
	// The new break is real memory.
	e.copyOut(t, memaddr.VirtAddr(grown-8), []byte("12345678"))

	if ret := e.syscall(t, 214, base-4096); ret != grown {
		t.Errorf("brk below the floor returned %#x, want the old break %#x", ret, grown)
	}
}

func TestMmap(t *testing.T) {
	e := newTestEnv(t)

	flags := uint64(linux.MAP_PRIVATE | linux.MAP_ANONYMOUS)
	prot := uint64(linux.PROT_READ | linux.PROT_WRITE)
	addr := e.syscall(t, 222, 0, memaddr.PageSize, prot, flags, ^uint64(0), 0)
	if int64(addr) < 0 {
		t.Fatalf("mmap returned %#x", addr)
	}
	if memaddr.VirtAddr(addr) < hart.TaskUnmappedBase {
		t.Errorf("mmap placed %#x below the unmapped base", addr)
	}
	e.copyOut(t, memaddr.VirtAddr(addr), []byte("backed"))

	if ret := e.syscall(t, 222, 0, memaddr.PageSize, prot, uint64(linux.MAP_PRIVATE), 3, 0); ret != errnoReturn(linuxerr.ENOSYS) {
		t.Errorf("file mmap returned %#x, want -ENOSYS", ret)
	}
	if ret := e.syscall(t, 222, 0, memaddr.PageSize, uint64(linux.PROT_NONE), flags, ^uint64(0), 0); ret != errnoReturn(linuxerr.EINVAL) {
		t.Errorf("PROT_NONE mmap returned %#x, want -EINVAL", ret)
	}
	if ret := e.syscall(t, 215, addr, memaddr.PageSize); ret != errnoReturn(linuxerr.ENOSYS) {
		t.Errorf("munmap returned %#x, want -ENOSYS", ret)
	}
}

func TestUnknownSyscall(t *testing.T) {
	e := newTestEnv(t)
	if ret := e.syscall(t, 9999); ret != errnoReturn(linuxerr.ENOSYS) {
		t.Errorf("unknown syscall returned %#x, want -ENOSYS", ret)
	}
}

func TestExitGroupEndsTask(t *testing.T) {
	m, err := hart.NewMachine(hart.MachineOpts{})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	t.Cleanup(m.Destroy)
	h := m.Hart(0)

	boot := taskctx.NewSchedInfo(taskctx.AllocPID())
	t.Cleanup(boot.DecRef)
	taskctx.InitCurrent(h, boot)

	as := mm.NewAddressSpace(m)
	t.Cleanup(as.DecUsers)
	task := taskctx.NewSchedInfo(taskctx.AllocPID())
	t.Cleanup(task.DecRef)
	task.SetAddressSpace(as)

	fds := fdtable.New()
	t.Cleanup(fds.Close)
	hart.RegisterSyscallHandler(RV64.Handler(fds))

	task.Reset(func() {
		tf := task.PtRegs()
		*tf = hart.NewUserTrapFrame(0x10000, 0)
		tf.A0 = 3
		tf.A7 = 94
		h.Syscall(tf)
		t.Errorf("exit_group returned to its caller")
	}, taskctx.TaskEntry, 0)

	taskctx.Switch(h, boot, task)

	if !task.Exited() || task.ExitCode() != 3 {
		t.Errorf("task state got exited=%t code=%d, want (true, 3)", task.Exited(), task.ExitCode())
	}
	select {
	case <-task.Done():
	default:
		t.Errorf("Done still open after exit_group")
	}
}
