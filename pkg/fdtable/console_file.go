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
	"rvisor.dev/rvisor/pkg/console"
)

// Console is the console as a file, standing behind the stdio
// descriptors.
type Console struct{}

// Read implements File.Read. The console has no input line, so reads
// report end of file.
func (Console) Read(b []byte) (int, error) {
	return 0, nil
}

// Write implements File.Write.
func (Console) Write(b []byte) (int, error) {
	return console.Write(b)
}

// Close implements File.Close. The console outlives any descriptor.
func (Console) Close() error {
	return nil
}
