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

package console

import (
	"bytes"
	"testing"
)

func TestRedirect(t *testing.T) {
	var buf bytes.Buffer
	prev := SetTarget(&buf)
	defer SetTarget(prev)

	if n, err := Write([]byte("hello")); n != 5 || err != nil {
		t.Fatalf("Write got (%d, %v), want (5, nil)", n, err)
	}
	if got := buf.String(); got != "hello" {
		t.Errorf("console received %q, want %q", got, "hello")
	}

	restored := SetTarget(&buf)
	if restored != &buf {
		t.Errorf("SetTarget did not return the previous target")
	}
}
