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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	"fmt"

	"golang.org/x/sys/unix"
	"rvisor.dev/rvisor/pkg/abi/linux/errno"
	"rvisor.dev/rvisor/pkg/errors"
)

const maxErrno uint32 = errno.EBADFD + 1

// The following errors are semantically identical to Errno of type unix.Errno
// or syscall.Errno. However, since the types are distinct (these are
// *errors.Error), they are not directly comparable. The Errno method returns
// an errno number such that the error can be compared to unix/syscall.Errno
// (e.g. unix.Errno(EPERM.Errno()) == unix.EPERM is true). Converting
// unix/syscall.Errno to these errors should be done via the lookup methods
// provided.
var (
	noError *errors.Error = nil
	EPERM                 = errors.New(errno.EPERM, "operation not permitted")
	ENOENT                = errors.New(errno.ENOENT, "no such file or directory")
	ESRCH                 = errors.New(errno.ESRCH, "no such process")
	EINTR                 = errors.New(errno.EINTR, "interrupted system call")
	EIO                   = errors.New(errno.EIO, "I/O error")
	ENXIO                 = errors.New(errno.ENXIO, "no such device or address")
	E2BIG                 = errors.New(errno.E2BIG, "argument list too long")
	ENOEXEC               = errors.New(errno.ENOEXEC, "exec format error")
	EBADF                 = errors.New(errno.EBADF, "bad file number")
	ECHILD                = errors.New(errno.ECHILD, "no child processes")
	EAGAIN                = errors.New(errno.EAGAIN, "try again")
	ENOMEM                = errors.New(errno.ENOMEM, "out of memory")
	EACCES                = errors.New(errno.EACCES, "permission denied")
	EFAULT                = errors.New(errno.EFAULT, "bad address")
	EBUSY                 = errors.New(errno.EBUSY, "device or resource busy")
	EEXIST                = errors.New(errno.EEXIST, "file exists")
	ENODEV                = errors.New(errno.ENODEV, "no such device")
	ENOTDIR               = errors.New(errno.ENOTDIR, "not a directory")
	EISDIR                = errors.New(errno.EISDIR, "is a directory")
	EINVAL                = errors.New(errno.EINVAL, "invalid argument")
	ENFILE                = errors.New(errno.ENFILE, "file table overflow")
	EMFILE                = errors.New(errno.EMFILE, "too many open files")
	EFBIG                 = errors.New(errno.EFBIG, "file too large")
	ENOSPC                = errors.New(errno.ENOSPC, "no space left on device")
	ESPIPE                = errors.New(errno.ESPIPE, "illegal seek")
	EROFS                 = errors.New(errno.EROFS, "read-only file system")
	EPIPE                 = errors.New(errno.EPIPE, "broken pipe")
	ERANGE                = errors.New(errno.ERANGE, "math result not representable")

	// Errno values from include/uapi/asm-generic/errno.h.
	EDEADLK      = errors.New(errno.EDEADLK, "resource deadlock would occur")
	ENAMETOOLONG = errors.New(errno.ENAMETOOLONG, "file name too long")
	ENOSYS       = errors.New(errno.ENOSYS, "invalid system call number")
	ENOTEMPTY    = errors.New(errno.ENOTEMPTY, "directory not empty")
	ELOOP        = errors.New(errno.ELOOP, "too many symbolic links encountered")
	ENOMSG       = errors.New(errno.ENOMSG, "no message of desired type")
	EOVERFLOW    = errors.New(errno.EOVERFLOW, "value too large for defined data type")
	EBADFD       = errors.New(errno.EBADFD, "file descriptor in bad state")
)

// EWOULDBLOCK is EAGAIN. It is defined as an alias to keep callers honest
// about which name the man page uses.
var EWOULDBLOCK = EAGAIN

// errNotValidError is returned when converting an errno that does not map to
// a defined error.
var errNotValidError = errors.New(errno.Errno(maxErrno), "not a valid error")

// The following errorSlice holds errors by errno for translation between
// *errors.Error and the errno value it wraps. Holes are filled with
// errNotValidError.
var errorSlice = func() []*errors.Error {
	s := make([]*errors.Error, maxErrno)
	for i := range s {
		s[i] = errNotValidError
	}
	for _, e := range []*errors.Error{
		EPERM, ENOENT, ESRCH, EINTR, EIO, ENXIO, E2BIG, ENOEXEC, EBADF,
		ECHILD, EAGAIN, ENOMEM, EACCES, EFAULT, EBUSY, EEXIST, ENODEV,
		ENOTDIR, EISDIR, EINVAL, ENFILE, EMFILE, EFBIG, ENOSPC, ESPIPE,
		EROFS, EPIPE, ERANGE, EDEADLK, ENAMETOOLONG, ENOSYS, ENOTEMPTY,
		ELOOP, ENOMSG, EOVERFLOW, EBADFD,
	} {
		s[e.Errno()] = e
	}
	s[0] = noError
	return s
}()

// ErrorFromErrno gets an error from the list and panics if an invalid entry
// is requested.
func ErrorFromErrno(e errno.Errno) *errors.Error {
	err := errorSlice[e]
	if err != errNotValidError {
		return err
	}
	panic(fmt.Sprintf("invalid errno: %d", e))
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. Host errnos with no
// defined counterpart collapse to EIO: host calls can fail in ways the
// kernel's own surface never produces, and those must not take it down.
func ErrorFromUnix(err unix.Errno) *errors.Error {
	if err == unix.Errno(0) {
		return noError
	}
	if uint32(err) >= maxErrno || errorSlice[err] == errNotValidError {
		return EIO
	}
	return errorSlice[err]
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	if err == nil {
		return e == noError
	}
	if e2, ok := err.(*errors.Error); ok {
		return e == e2
	}
	if u, ok := err.(unix.Errno); ok {
		return uint32(e.Errno()) == uint32(u)
	}
	return false
}
