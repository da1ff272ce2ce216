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

// Package linux contains the constants and types needed to interface with a
// Linux user program on riscv64. The kernel presents the Linux syscall ABI
// to its tasks, so these definitions must match include/uapi exactly.
package linux

// AT_FDCWD is the special directory fd value meaning the current working
// directory, from include/uapi/linux/fcntl.h.
const AT_FDCWD = -100

// Open flags, from include/uapi/asm-generic/fcntl.h.
const (
	O_RDONLY  = 0o0
	O_WRONLY  = 0o1
	O_RDWR    = 0o2
	O_ACCMODE = 0o3

	O_CREAT  = 0o100
	O_EXCL   = 0o200
	O_TRUNC  = 0o1000
	O_APPEND = 0o2000
)
