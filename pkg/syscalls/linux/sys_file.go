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
	"golang.org/x/sys/unix"

	"rvisor.dev/rvisor/pkg/abi/linux"
	"rvisor.dev/rvisor/pkg/console"
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/fdtable"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
	"rvisor.dev/rvisor/pkg/syscalls"
	"rvisor.dev/rvisor/pkg/usermem"
)

const (
	// pathMax bounds user path reads, matching PATH_MAX.
	pathMax = 4096

	// readBufSize is the kernel bounce buffer for read(2). A single call
	// moves at most this much.
	readBufSize = 1024

	// maxRWCount caps a single transfer the way MAX_RW_COUNT does.
	maxRWCount = (1<<31 - 1) &^ memaddr.PageMask

	// sizeOfStat is the size of struct stat on riscv64.
	sizeOfStat = 128
)

// Openat implements linux syscall openat(2). Paths open on the host:
// absolute ones as given, relative ones against the directory fd, or the
// host working directory for AT_FDCWD.
func Openat(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	dirfd := int32(tf.A0)
	path, err := usermem.CopyStringIn(ctx.Hart, memaddr.VirtAddr(tf.A1), pathMax)
	if err != nil {
		return 0, err
	}
	flags := int(tf.A2)
	mode := uint32(tf.A3)

	hostDirfd := unix.AT_FDCWD
	if dirfd != linux.AT_FDCWD && len(path) > 0 && path[0] != '/' {
		f, ok := ctx.FDs.Get(dirfd)
		if !ok {
			return 0, linuxerr.EBADF
		}
		hf, ok := f.(*fdtable.HostFile)
		if !ok {
			return 0, linuxerr.ENOTDIR
		}
		hostDirfd = hf.HostFD()
	}

	file, err := fdtable.OpenHost(hostDirfd, path, flags, mode)
	if err != nil {
		return 0, err
	}
	fd, err := ctx.FDs.Install(file)
	if err != nil {
		file.Close()
		return 0, err
	}
	return uintptr(fd), nil
}

// Close implements linux syscall close(2).
func Close(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	f, ok := ctx.FDs.Remove(int32(tf.A0))
	if !ok {
		return 0, linuxerr.EBADF
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return 0, nil
}

// Read implements linux syscall read(2). Data moves through a fixed
// kernel buffer, so a call returns at most readBufSize bytes and short
// reads are normal.
func Read(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	f, ok := ctx.FDs.Get(int32(tf.A0))
	if !ok {
		return 0, linuxerr.EBADF
	}
	count := tf.A2
	if count > readBufSize {
		count = readBufSize
	}
	if count == 0 {
		return 0, nil
	}

	buf := make([]byte, count)
	n, err := f.Read(buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := usermem.CopyOut(ctx.Hart, memaddr.VirtAddr(tf.A1), buf[:n]); err != nil {
		return 0, err
	}
	return uintptr(n), nil
}

// Write implements linux syscall write(2). The machine has one output
// device, so bytes land on the console whatever the descriptor says.
func Write(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	count := tf.A2
	if count > maxRWCount {
		count = maxRWCount
	}
	if count == 0 {
		return 0, nil
	}

	buf := make([]byte, count)
	if _, err := usermem.CopyIn(ctx.Hart, memaddr.VirtAddr(tf.A1), buf); err != nil {
		return 0, err
	}
	n, err := console.Write(buf)
	if err != nil && n == 0 {
		return 0, linuxerr.EIO
	}
	return uintptr(n), nil
}

// Writev implements linux syscall writev(2), gathering onto the console.
func Writev(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	iovs, err := usermem.CopyInIOVecs(ctx.Hart, memaddr.VirtAddr(tf.A1), int(int32(tf.A2)))
	if err != nil {
		return 0, err
	}

	var total uintptr
	for _, iov := range iovs {
		length := iov.Len
		if rem := uint64(maxRWCount) - uint64(total); length > rem {
			length = rem
		}
		if length == 0 {
			continue
		}
		buf := make([]byte, length)
		if _, err := usermem.CopyIn(ctx.Hart, memaddr.VirtAddr(iov.Base), buf); err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		n, err := console.Write(buf)
		total += uintptr(n)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, linuxerr.EIO
		}
	}
	return total, nil
}

// Readlinkat implements linux syscall readlinkat(2). Nothing the kernel
// serves is a symlink; the all-ones return tells the caller to use the
// path as is.
func Readlinkat(*syscalls.Context, *hart.TrapFrame) (uintptr, error) {
	return ^uintptr(0), nil
}

// Fstatat implements linux syscall fstatat(2) as a stub. The stat buffer
// is zeroed and the call reports success, which satisfies existence
// probes without promising real metadata.
func Fstatat(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	if _, err := usermem.ZeroOut(ctx.Hart, memaddr.VirtAddr(tf.A2), sizeOfStat); err != nil {
		return 0, err
	}
	return 0, nil
}
