// Copyright (c) 2026 John Earle
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

package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestOpen_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "completed.log")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer log.Close()

	if log.Len() != 0 {
		t.Errorf("Len = %d, want 0", log.Len())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestMarkDone_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed.log")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	key := Key("rec-1", "file-a")
	if log.IsDone(key) {
		t.Fatal("fresh log reports key as done")
	}
	if err := log.MarkDone(key); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	if !log.IsDone(key) {
		t.Error("key not done after MarkDone")
	}
	log.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if !reopened.IsDone(key) {
		t.Error("key lost across reopen")
	}
	if reopened.IsDone(Key("rec-1", "file-b")) {
		t.Error("unexpected key reported done")
	}
}

func TestMarkDone_AtMostOnceInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed.log")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	key := Key("rec-1", "file-a")
	for i := 0; i < 3; i++ {
		if err := log.MarkDone(key); err != nil {
			t.Fatalf("MarkDone #%d failed: %v", i, err)
		}
	}
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), key); got != 1 {
		t.Errorf("key appears %d times in log, want 1", got)
	}
}

func TestMarkDone_ConcurrentAppendsNotInterleaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed.log")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := log.MarkDone(Key("rec", fmt.Sprintf("file-%02d", i))); err != nil {
				t.Errorf("MarkDone failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != n {
		t.Fatalf("log has %d lines, want %d", len(lines), n)
	}
	seen := make(map[string]bool, n)
	for _, line := range lines {
		if !strings.HasPrefix(line, "rec/file-") {
			t.Errorf("corrupt log line: %q", line)
		}
		if seen[line] {
			t.Errorf("duplicate log line: %q", line)
		}
		seen[line] = true
	}
}
