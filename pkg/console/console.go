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

// Package console is the machine's output device. User program writes land
// here regardless of descriptor, the way a serial port soaks up everything
// a small kernel prints.
package console

import (
	"io"
	"os"

	"rvisor.dev/rvisor/pkg/sync"
)

var (
	mu     sync.Mutex
	target io.Writer = os.Stdout
)

// SetTarget redirects console output to w and returns the previous target.
func SetTarget(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := target
	target = w
	return prev
}

// Write writes b to the console in one piece.
func Write(b []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	return target.Write(b)
}
