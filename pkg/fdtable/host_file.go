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

package fdtable

import (
	"golang.org/x/sys/unix"

	"rvisor.dev/rvisor/pkg/errors/linuxerr"
)

// HostFile is a file backed by a host descriptor. The machine's image
// store is the host filesystem.
type HostFile struct {
	fd   int
	name string
}

// OpenHost opens path on the host. Relative paths resolve against dirfd,
// which takes unix.AT_FDCWD or the host descriptor of an open directory.
func OpenHost(dirfd int, path string, flags int, mode uint32) (*HostFile, error) {
	fd, err := unix.Openat(dirfd, path, flags, mode)
	if err != nil {
		return nil, asLinuxerr(err)
	}
	return &HostFile{fd: fd, name: path}, nil
}

// Name returns the path the file was opened with.
func (f *HostFile) Name() string {
	return f.name
}

// HostFD returns the backing host descriptor.
func (f *HostFile) HostFD() int {
	return f.fd
}

// Read implements File.Read.
func (f *HostFile) Read(b []byte) (int, error) {
	n, err := unix.Read(f.fd, b)
	if err != nil {
		return 0, asLinuxerr(err)
	}
	return n, nil
}

// Write implements File.Write.
func (f *HostFile) Write(b []byte) (int, error) {
	n, err := unix.Write(f.fd, b)
	if err != nil {
		return 0, asLinuxerr(err)
	}
	return n, nil
}

// Close implements File.Close.
func (f *HostFile) Close() error {
	if err := unix.Close(f.fd); err != nil {
		return asLinuxerr(err)
	}
	return nil
}

// asLinuxerr converts a host syscall error to the table's error space.
func asLinuxerr(err error) error {
	if errno, ok := err.(unix.Errno); ok {
		return linuxerr.ErrorFromUnix(errno)
	}
	return linuxerr.EIO
}
