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

// Package usermem moves data between kernel buffers and user task memory.
//
// Accesses walk the current address space page by page through the hart's
// translation, with user access (SUM) raised for the duration and restored
// afterwards. The kernel has no recovery path for its own bad dereferences,
// so touching unmapped or protected user memory is fatal; the errors
// returned here cover argument problems only.
package usermem

import (
	"bytes"

	"rvisor.dev/rvisor/pkg/abi/linux"
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/memaddr"
)

// withSUM runs f with user memory access enabled, then restores the
// previous state so callers can nest their own brackets.
func withSUM(h *hart.Hart, f func()) {
	if h.SUMEnabled() {
		f()
		return
	}
	h.EnableSUM()
	defer h.DisableSUM()
	f()
}

// CopyOut copies src into user memory at addr and returns the number of
// bytes written.
func CopyOut(h *hart.Hart, addr memaddr.VirtAddr, src []byte) (int, error) {
	if _, ok := addr.AddLength(uint64(len(src))); !ok {
		return 0, linuxerr.EFAULT
	}
	withSUM(h, func() {
		for done := 0; done < len(src); {
			done += copy(hostPage(h, addr+memaddr.VirtAddr(done), memaddr.Write), src[done:])
		}
	})
	return len(src), nil
}

// CopyIn copies user memory at addr into dst and returns the number of
// bytes read.
func CopyIn(h *hart.Hart, addr memaddr.VirtAddr, dst []byte) (int, error) {
	if _, ok := addr.AddLength(uint64(len(dst))); !ok {
		return 0, linuxerr.EFAULT
	}
	withSUM(h, func() {
		for done := 0; done < len(dst); {
			done += copy(dst[done:], hostPage(h, addr+memaddr.VirtAddr(done), memaddr.Read))
		}
	})
	return len(dst), nil
}

// ZeroOut writes toZero zero bytes to user memory at addr.
func ZeroOut(h *hart.Hart, addr memaddr.VirtAddr, toZero int64) (int64, error) {
	if toZero < 0 {
		return 0, linuxerr.EINVAL
	}
	if _, ok := addr.AddLength(uint64(toZero)); !ok {
		return 0, linuxerr.EFAULT
	}
	withSUM(h, func() {
		for done := int64(0); done < toZero; {
			b := hostPage(h, addr+memaddr.VirtAddr(done), memaddr.Write)
			if rem := toZero - done; int64(len(b)) > rem {
				b = b[:rem]
			}
			clear(b)
			done += int64(len(b))
		}
	})
	return toZero, nil
}

// CopyStringIn reads a NUL-terminated string of at most maxlen bytes from
// user memory at addr. If no terminator appears within maxlen bytes, the
// bytes read so far are returned along with ENAMETOOLONG.
func CopyStringIn(h *hart.Hart, addr memaddr.VirtAddr, maxlen int) (string, error) {
	if maxlen < 0 {
		return "", linuxerr.EINVAL
	}
	if _, ok := addr.AddLength(uint64(maxlen)); !ok {
		return "", linuxerr.EFAULT
	}
	var (
		buf []byte
		err error
	)
	withSUM(h, func() {
		for len(buf) < maxlen {
			b := hostPage(h, addr+memaddr.VirtAddr(len(buf)), memaddr.Read)
			if rem := maxlen - len(buf); len(b) > rem {
				b = b[:rem]
			}
			if i := bytes.IndexByte(b, 0); i >= 0 {
				buf = append(buf, b[:i]...)
				return
			}
			buf = append(buf, b...)
		}
		err = linuxerr.ENAMETOOLONG
	})
	return string(buf), err
}

// CopyInIOVecs reads an iovec array of count elements from user memory
// at addr.
func CopyInIOVecs(h *hart.Hart, addr memaddr.VirtAddr, count int) ([]linux.IOVec, error) {
	switch {
	case count < 0 || count > linux.UIOMaxIOV:
		return nil, linuxerr.EINVAL
	case count == 0:
		return nil, nil
	}
	buf := make([]byte, count*linux.IOVecSize)
	if _, err := CopyIn(h, addr, buf); err != nil {
		return nil, err
	}
	iovs := make([]linux.IOVec, count)
	for i := range iovs {
		b := buf[i*linux.IOVecSize:]
		iovs[i].Base = memaddr.ByteOrder.Uint64(b)
		iovs[i].Len = memaddr.ByteOrder.Uint64(b[8:])
	}
	return iovs, nil
}
