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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"rvisor.dev/rvisor/pkg/console"
	"rvisor.dev/rvisor/pkg/errors/linuxerr"
)

func TestStdioWiredToConsole(t *testing.T) {
	var buf bytes.Buffer
	prev := console.SetTarget(&buf)
	defer console.SetTarget(prev)

	tbl := New()
	for fd := int32(0); fd < 3; fd++ {
		f, ok := tbl.Get(fd)
		if !ok {
			t.Fatalf("fd %d not wired", fd)
		}
		if _, err := f.Write([]byte{'x'}); err != nil {
			t.Fatalf("fd %d write: %v", fd, err)
		}
	}
	if got := buf.String(); got != "xxx" {
		t.Errorf("console received %q, want %q", got, "xxx")
	}

	f, _ := tbl.Get(0)
	if n, err := f.Read(make([]byte, 8)); n != 0 || err != nil {
		t.Errorf("console read got (%d, %v), want EOF", n, err)
	}
}

func TestInstallLowestFree(t *testing.T) {
	tbl := New()
	fd, err := tbl.Install(Console{})
	if err != nil || fd != 3 {
		t.Fatalf("Install got (%d, %v), want (3, nil)", fd, err)
	}

	if _, ok := tbl.Remove(1); !ok {
		t.Fatalf("Remove(1) found nothing")
	}
	fd, err = tbl.Install(Console{})
	if err != nil || fd != 1 {
		t.Errorf("Install after hole got (%d, %v), want (1, nil)", fd, err)
	}
}

func TestInstallFull(t *testing.T) {
	tbl := New()
	for {
		if _, err := tbl.Install(Console{}); err != nil {
			if err != linuxerr.EMFILE {
				t.Fatalf("full table got %v, want EMFILE", err)
			}
			break
		}
	}
	if _, ok := tbl.Get(maxFDs - 1); !ok {
		t.Errorf("table filled up short of the limit")
	}
}

func TestRemove(t *testing.T) {
	tbl := New()
	want := Console{}
	fd, err := tbl.Install(want)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	got, ok := tbl.Remove(fd)
	if !ok || got != File(want) {
		t.Fatalf("Remove returned (%v, %t)", got, ok)
	}
	if _, ok := tbl.Get(fd); ok {
		t.Errorf("fd %d still present after Remove", fd)
	}
	if _, ok := tbl.Remove(fd); ok {
		t.Errorf("second Remove found a file")
	}
}

func TestHostFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	content := bytes.Repeat([]byte("rvisor"), 100)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := OpenHost(unix.AT_FDCWD, path, unix.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	if f.Name() != path {
		t.Errorf("Name got %q, want %q", f.Name(), path)
	}

	var got []byte
	buf := make([]byte, 64)
	for {
		n, err := f.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("read back %d bytes, want %d", len(got), len(content))
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.Read(buf); err != linuxerr.EBADF {
		t.Errorf("read after close got %v, want EBADF", err)
	}
}

func TestHostFileWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	f, err := OpenHost(unix.AT_FDCWD, path, unix.O_CREAT|unix.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	if n, err := f.Write([]byte("payload")); n != 7 || err != nil {
		t.Fatalf("Write got (%d, %v)", n, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil || string(got) != "payload" {
		t.Errorf("file holds (%q, %v), want %q", got, err, "payload")
	}
}

func TestOpenHostMissing(t *testing.T) {
	_, err := OpenHost(unix.AT_FDCWD, filepath.Join(t.TempDir(), "nope"), unix.O_RDONLY, 0)
	if err != linuxerr.ENOENT {
		t.Errorf("got %v, want ENOENT", err)
	}
}
