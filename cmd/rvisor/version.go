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
)

// version is set during linking with -X main.version.
var version = "development"

// versionCmd implements subcommands.Command for the "version" command.
type versionCmd struct{}

// Name implements subcommands.Command.Name.
func (*versionCmd) Name() string {
	return "version"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*versionCmd) Synopsis() string {
	return "show the rvisor version"
}

// Usage implements subcommands.Command.Usage.
func (*versionCmd) Usage() string {
	return `version - show the rvisor version
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*versionCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stdout, "rvisor version %s\n", version)
	return subcommands.ExitSuccess
}
