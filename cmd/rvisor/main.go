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

// Binary rvisor boots the machine model and runs its init program
// against the Linux syscall surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"rvisor.dev/rvisor/pkg/log"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(runCmd), "")
	subcommands.Register(new(versionCmd), "")

	configPath := flag.String("config", "", "TOML file with machine settings; flags set here override it")
	showVersion := flag.Bool("version", false, "show version and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	debugLog := flag.String("debug-log", "", "file to write logs to, empty means stderr")
	logFormat := flag.String("log-format", "", `log format: "text" or "json"`)
	harts := flag.Int("harts", 0, "number of harts to boot")

	flag.Parse()

	// Handle the -version flag the same way as the version command so
	// "rvisor -version" keeps working in scripts.
	if *showVersion {
		fmt.Fprintf(os.Stdout, "rvisor version %s\n", version)
		os.Exit(0)
	}

	conf := defaultConfig()
	if *configPath != "" {
		if err := conf.loadFile(*configPath); err != nil {
			fatalf("reading config: %v", err)
		}
	}

	// Flags given on the command line win over the config file, but a
	// flag left at its default must not clobber a configured value.
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "debug":
			conf.Debug = *debug
		case "debug-log":
			conf.DebugLog = *debugLog
		case "log-format":
			conf.LogFormat = *logFormat
		case "harts":
			conf.Harts = *harts
		}
	})
	if err := conf.validate(); err != nil {
		fatalf("bad config: %v", err)
	}

	if err := setupLogging(conf); err != nil {
		fatalf("setting up logs: %v", err)
	}
	log.Infof("***************************")
	log.Infof("rvisor version %s starting", version)
	log.Infof("Args: %v", os.Args)
	log.Infof("***************************")

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}

// setupLogging points the log package at the configured destination and
// format before any command runs.
func setupLogging(conf *config) error {
	w := io.Writer(os.Stderr)
	if conf.DebugLog != "" {
		f, err := os.OpenFile(conf.DebugLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening debug log file %q: %w", conf.DebugLog, err)
		}
		w = f
	}

	var e log.Emitter
	switch conf.LogFormat {
	case "text", "":
		e = log.GoogleEmitter{Emitter: &log.Writer{Next: w}}
	case "json":
		e = log.NewLogrusEmitter(w)
	default:
		return fmt.Errorf("invalid log format %q, must be "+`"text" or "json"`, conf.LogFormat)
	}
	log.SetTarget(e)

	if conf.Debug {
		log.SetLevel(log.Debug)
	}
	return nil
}

// fatalf prints an error to stderr and exits. It is only for failures
// before a command takes over; commands return an exit status instead.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rvisor: "+format+"\n", args...)
	// 128 is out of the range of the init program's own exit codes, so
	// callers can tell a setup failure from a program failure.
	os.Exit(128)
}
