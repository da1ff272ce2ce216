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
	"fmt"

	"github.com/BurntSushi/toml"
)

// config holds the machine settings shared by all commands. A TOML file
// provides the base values and command line flags override them.
type config struct {
	// Harts is the number of harts the machine boots. Only hart 0 runs
	// the init program; the others sit in their idle loops.
	Harts int `toml:"harts"`

	// Debug enables debug level logging.
	Debug bool `toml:"debug"`

	// DebugLog is the path logs are appended to. Empty means stderr.
	DebugLog string `toml:"debug_log"`

	// LogFormat is "text" for glog style lines or "json" for one JSON
	// record per line.
	LogFormat string `toml:"log_format"`
}

func defaultConfig() *config {
	return &config{
		Harts:     1,
		LogFormat: "text",
	}
}

// loadFile merges the TOML file at path into c. Keys the file does not
// mention keep their current values; keys c does not know are an error,
// since a typoed setting silently doing nothing is worse than a failure.
func (c *config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys %v in %s", undecoded, path)
	}
	return nil
}

func (c *config) validate() error {
	if c.Harts < 1 {
		return fmt.Errorf("harts is %d, need at least one", c.Harts)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
