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

package log

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestLogrusEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogrusEmitter(&buf)
	e.Emit(Info, time.Now(), "hello %d", 42)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("emitted %q, not JSON: %v", buf.String(), err)
	}
	if got := record["msg"]; got != "hello 42" {
		t.Errorf("msg got %q, want %q", got, "hello 42")
	}
	if got := record["level"]; got != "info" {
		t.Errorf("level got %q, want %q", got, "info")
	}
}

func TestLogrusEmitterLevels(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogrusEmitter(&buf)
	for _, level := range []Level{Warning, Info, Debug} {
		buf.Reset()
		e.Emit(level, time.Now(), "x")
		if buf.Len() == 0 {
			t.Errorf("level %v was swallowed by the emitter", level)
		}
	}
}
