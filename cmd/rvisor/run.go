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
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"rvisor.dev/rvisor/pkg/fdtable"
	"rvisor.dev/rvisor/pkg/hart"
	"rvisor.dev/rvisor/pkg/log"
	"rvisor.dev/rvisor/pkg/metric"
	"rvisor.dev/rvisor/pkg/mm"
	"rvisor.dev/rvisor/pkg/syscalls/linux"
	"rvisor.dev/rvisor/pkg/taskctx"
)

// runCmd implements subcommands.Command for the "run" command.
type runCmd struct {
	// metricsLog is a file the machine counters are written to after
	// the init program exits. Empty disables the dump.
	metricsLog string
}

// Name implements subcommands.Command.Name.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*runCmd) Synopsis() string {
	return "boot the machine and run the init program"
}

// Usage implements subcommands.Command.Usage.
func (*runCmd) Usage() string {
	return `run [flags] [path...] - boot the machine and run the init program.

Each path is opened by init through the machine's syscall surface and
written to the console. The exit code of init becomes the exit code of
rvisor.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.metricsLog, "metrics-log", "", "file to write machine counters to after the run")
}

// Execute implements subcommands.Command.Execute.
func (r *runCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config)

	code, err := boot(conf, f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvisor: %v\n", err)
		return subcommands.ExitFailure
	}
	if r.metricsLog != "" {
		if err := dumpMetrics(r.metricsLog); err != nil {
			fmt.Fprintf(os.Stderr, "rvisor: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitStatus(code)
}

// boot brings up the machine, hands hart 0 to the init program and
// waits for it to exit. The returned code is init's exit code.
func boot(conf *config, paths []string) (int32, error) {
	m, err := hart.NewMachine(hart.MachineOpts{Harts: conf.Harts})
	if err != nil {
		return 0, fmt.Errorf("booting machine: %w", err)
	}
	defer m.Destroy()
	h := m.Hart(0)

	// The caller's goroutine plays the boot task. It owns the hart
	// until init is ready and gets it back when init exits.
	bootTask := taskctx.NewSchedInfo(taskctx.AllocPID())
	defer bootTask.DecRef()
	taskctx.InitCurrent(h, bootTask)

	fds := fdtable.New()
	defer fds.Close()
	hart.RegisterSyscallHandler(linux.RV64.Handler(fds))

	as := mm.NewAddressSpace(m)
	defer as.DecUsers()
	as.SetBrk(initBrkBase)

	init := taskctx.NewSchedInfo(taskctx.AllocPID())
	defer init.DecRef()
	init.SetAddressSpace(as)
	init.Reset(func() { runInit(h, init, paths) }, taskctx.TaskEntry, 0)

	log.Infof("running init as pid %d on hart %d", init.PID(), h.ID())
	taskctx.Switch(h, bootTask, init)

	// Switch only returns once init has left the hart, which it does
	// by exiting.
	<-init.Done()
	code := init.ExitCode()
	log.Infof("init exited with code %d", code)
	return code, nil
}

func dumpMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics log: %w", err)
	}
	defer f.Close()
	if err := metric.WriteText(f); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
