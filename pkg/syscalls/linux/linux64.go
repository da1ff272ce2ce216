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

// Package linux implements the Linux riscv64 syscall ABI for programs
// running on rvisor.
package linux

import (
	"rvisor.dev/rvisor/pkg/syscalls"
)

// RV64 is the riscv64 syscall table.
var RV64 = syscalls.NewTable("riscv64", map[uint64]syscalls.Syscall{
	56:  syscalls.Supported("openat", Openat),
	57:  syscalls.Supported("close", Close),
	63:  syscalls.PartiallySupported("read", Read, "reads are chunked through a fixed kernel buffer"),
	64:  syscalls.PartiallySupported("write", Write, "every descriptor writes to the console"),
	66:  syscalls.PartiallySupported("writev", Writev, "every descriptor writes to the console"),
	78:  syscalls.PartiallySupported("readlinkat", Readlinkat, "links are never resolved"),
	79:  syscalls.PartiallySupported("fstatat", Fstatat, "reports success with a zeroed stat buffer"),
	93:  syscalls.Supported("exit", Exit),
	94:  syscalls.Supported("exit_group", ExitGroup),
	160: syscalls.Supported("uname", Uname),
	172: syscalls.Supported("getpid", Getpid),
	178: syscalls.Supported("gettid", Gettid),
	214: syscalls.Supported("brk", Brk),
	215: syscalls.PartiallySupported("munmap", Munmap, "mappings are never torn down"),
	222: syscalls.PartiallySupported("mmap", Mmap, "private anonymous mappings only"),
})
