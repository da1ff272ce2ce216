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
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/syscalls"
	"rvisor.dev/rvisor/pkg/taskctx"
)

// Exit implements linux syscall exit(2). It does not return; the task
// hands the hart back to its boot task.
func Exit(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	taskctx.Exit(ctx.Hart, int32(tf.A0))
	panic("unreachable")
}

// ExitGroup implements linux syscall exit_group(2). Every task is its
// own thread group, so it is exit by another name.
func ExitGroup(ctx *syscalls.Context, tf *hart.TrapFrame) (uintptr, error) {
	taskctx.Exit(ctx.Hart, int32(tf.A0))
	panic("unreachable")
}
