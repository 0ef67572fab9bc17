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

// Package tracker records which recording files have been fully archived.
// The completed log is a plain-text file with one key per line, append-only;
// it is the only state the archiver persists between runs.
package tracker

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Key builds the dedup key for one file of one recording. Keying at file
// granularity lets a partially archived recording resume without
// re-transferring the files that already made it.
func Key(recordingID, fileID string) string {
	return recordingID + "/" + fileID
}

// Log is the completed-set tracker. Lookups hit an in-memory set loaded at
// open time; appends are flushed to disk before MarkDone returns, so the
// set and the file never diverge for committed keys.
type Log struct {
	mu   sync.Mutex
	file *os.File
	done map[string]struct{}
	path string
}

// Open loads the completed log at path, creating it (and its directory)
// when absent.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open completed log %s: %w", path, err)
	}

	done := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			continue
		}
		done[key] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read completed log %s: %w", path, err)
	}

	slog.Info("completed log loaded", "path", path, "entries", len(done))

	return &Log{file: f, done: done, path: path}, nil
}

// IsDone reports whether key has already been archived.
func (l *Log) IsDone(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[key]
	return ok
}

// MarkDone appends key to the log and syncs it to disk before returning.
// Marking an already-done key is a no-op, so a key appears in the file at
// most once. Appends are serialized; a partial line is never written.
func (l *Log) MarkDone(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.done[key]; ok {
		return nil
	}

	if _, err := l.file.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("append completed log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync completed log: %w", err)
	}

	l.done[key] = struct{}{}
	return nil
}

// Len returns the number of archived keys.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}

// Close releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
