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

// Package transfer moves one recording file at a time through the
// download → upload → cleanup transaction: stream from the recording API
// to a local temp file, push it to the document drive, then record
// completion and delete the temp file. A key is only ever marked done
// after upload is confirmed, so a failed file is retried on the next run.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bcem/archiver/internal/graphdrive"
	"github.com/bcem/archiver/internal/pathtmpl"
	"github.com/bcem/archiver/internal/retry"
	"github.com/bcem/archiver/internal/tracker"
	"github.com/bcem/archiver/internal/zoom"
)

// Status classifies the outcome of one file transfer.
type Status int

const (
	StatusDone Status = iota
	StatusSkipped
	StatusFailed
)

// Result reports one file transfer.
type Result struct {
	Status Status
	Bytes  int64
	Err    error
}

// TransferError means the download or upload for one file exhausted its
// retries. The file's key is not marked done, so the next run picks it
// up again.
type TransferError struct {
	Account     string
	RecordingID string
	FileID      string
	Stage       string // "download", "upload", or "record"
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s/%s for %s: %v", e.Stage, e.RecordingID, e.FileID, e.Account, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Config holds the engine's collaborators.
type Config struct {
	Zoom    *zoom.Client
	Drive   *graphdrive.Client
	Tracker *tracker.Log

	Renderer         *pathtmpl.Renderer
	FilenameTemplate string
	FolderTemplate   string

	// RemoteRoot is the drive folder all uploads land under.
	RemoteRoot string
	// DownloadDir receives the temporary local copies.
	DownloadDir string

	Retry  retry.Config
	DryRun bool
}

// Engine executes file transfers. Safe for concurrent use; the tracker
// serializes completion records.
type Engine struct {
	cfg Config
}

// NewEngine creates a transfer engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Transfer archives one file of one recording. Already-archived keys are
// skipped without touching the network; in dry-run mode the intended
// action is logged and nothing is written anywhere.
func (e *Engine) Transfer(ctx context.Context, account string, rec zoom.Recording, f zoom.RecordingFile) Result {
	key := tracker.Key(rec.UUID, f.ID)
	if e.cfg.Tracker.IsDone(key) {
		slog.Debug("file already archived", "key", key)
		return Result{Status: StatusSkipped}
	}

	vals := pathtmpl.Values{
		Topic:         rec.Topic,
		RecordingID:   f.ID,
		RecType:       f.RecType(),
		FileExtension: f.FileExtension,
		StartTime:     rec.StartTime,
	}

	filename, err := e.cfg.Renderer.Render(e.cfg.FilenameTemplate, vals)
	if err != nil {
		return e.fail(account, rec, f, "template", err)
	}
	folder, err := e.cfg.Renderer.Render(e.cfg.FolderTemplate, vals)
	if err != nil {
		return e.fail(account, rec, f, "template", err)
	}

	remoteFolder := path.Join(e.cfg.RemoteRoot, account, folder)
	remotePath := path.Join(remoteFolder, filename)

	if e.cfg.DryRun {
		slog.Info("dry run: would archive file",
			"account", account,
			"recording", rec.UUID,
			"file", f.ID,
			"remote_path", remotePath,
			"size", f.FileSize,
		)
		return Result{Status: StatusDone}
	}

	tmpPath := filepath.Join(e.cfg.DownloadDir, uuid.New().String()+".part")

	n, err := e.download(ctx, rec, f, tmpPath)
	if err != nil {
		return e.fail(account, rec, f, "download", err)
	}

	if err := e.upload(ctx, tmpPath, remoteFolder, remotePath); err != nil {
		os.Remove(tmpPath)
		return e.fail(account, rec, f, "upload", err)
	}

	// Record completion before deleting the temp file. A crash between the
	// two at worst leaves an orphaned temp file for the next run's stale
	// sweep, never a confirmed upload without a completion record.
	if err := e.cfg.Tracker.MarkDone(key); err != nil {
		return e.fail(account, rec, f, "record", err)
	}
	if err := os.Remove(tmpPath); err != nil {
		slog.Warn("could not remove downloaded temp file", "path", tmpPath, "error", err)
	}

	slog.Info("file archived",
		"account", account,
		"recording", rec.UUID,
		"file", f.ID,
		"remote_path", remotePath,
		"bytes", n,
	)
	return Result{Status: StatusDone, Bytes: n}
}

// download streams the file to tmpPath with retries. A failed attempt
// deletes its partial file before the next one starts, so no attempt ever
// leaves a partial download behind.
func (e *Engine) download(ctx context.Context, rec zoom.Recording, f zoom.RecordingFile, tmpPath string) (int64, error) {
	var n int64
	err := retry.Do(ctx, e.cfg.Retry, "download "+f.ID, func(ctx context.Context) error {
		out, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}

		written, err := e.cfg.Zoom.Download(ctx, f, rec.Passcode, out)
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(tmpPath)
			return err
		}

		n = written
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// upload ensures the destination folder exists and pushes the temp file.
// The temp file is preserved across upload retries; a retry never
// re-downloads.
func (e *Engine) upload(ctx context.Context, tmpPath, remoteFolder, remotePath string) error {
	if err := e.cfg.Drive.EnsureFolder(ctx, remoteFolder); err != nil {
		return err
	}
	return e.cfg.Drive.Upload(ctx, tmpPath, remotePath)
}

func (e *Engine) fail(account string, rec zoom.Recording, f zoom.RecordingFile, stage string, err error) Result {
	terr := &TransferError{
		Account:     account,
		RecordingID: rec.UUID,
		FileID:      f.ID,
		Stage:       stage,
		Err:         err,
	}
	slog.Error("file transfer failed",
		"account", account,
		"recording", rec.UUID,
		"file", f.ID,
		"stage", stage,
		"error", err,
	)
	return Result{Status: StatusFailed, Err: terr}
}

// CleanStale removes partial downloads left behind by an interrupted run.
// Called once at startup, before any transfers begin.
func CleanStale(downloadDir string) error {
	matches, err := filepath.Glob(filepath.Join(downloadDir, "*.part"))
	if err != nil {
		return fmt.Errorf("scan download dir: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("remove stale temp file %s: %w", m, err)
		}
		slog.Info("removed stale partial download", "path", m)
	}
	return nil
}
