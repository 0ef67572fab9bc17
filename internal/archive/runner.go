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

// Package archive drives the synchronization run: for each account,
// enumerate recordings in the date window and push every file through the
// transfer engine. One failed file never aborts the run, and an
// enumeration failure aborts only its own account.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bcem/archiver/internal/transfer"
	"github.com/bcem/archiver/internal/zoom"
)

// Failure records one unrecoverable problem from a run. FileID is empty
// for account-level failures (enumeration or auth).
type Failure struct {
	Account     string
	RecordingID string
	FileID      string
	Err         error
}

// Summary aggregates a completed run.
type Summary struct {
	Transferred int
	Skipped     int
	Failed      int
	Bytes       int64
	Failures    []Failure
	Elapsed     time.Duration
}

// RunnerConfig holds the orchestrator's collaborators.
type RunnerConfig struct {
	Zoom     *zoom.Client
	Engine   *transfer.Engine
	Accounts []string
	From     time.Time
	To       time.Time
	// Workers bounds concurrent file transfers. Defaults to 4.
	Workers int
}

// Runner walks accounts × recordings × files.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Runner{cfg: cfg}
}

// Run archives all configured accounts and returns the aggregated
// summary. Cancellation stops scheduling new transfers; in-flight ones
// finish or abort at their next I/O boundary.
func (r *Runner) Run(ctx context.Context) *Summary {
	start := time.Now()
	runID := uuid.New().String()

	slog.Info("starting archive run",
		"run_id", runID,
		"accounts", len(r.cfg.Accounts),
		"from", r.cfg.From.Format("2006-01-02"),
		"to", r.cfg.To.Format("2006-01-02"),
		"workers", r.cfg.Workers,
	)

	sum := &Summary{}
	var mu sync.Mutex

	for _, account := range r.cfg.Accounts {
		if ctx.Err() != nil {
			slog.Warn("run cancelled, skipping remaining accounts", "run_id", runID)
			break
		}
		r.runAccount(ctx, account, sum, &mu)
	}

	sum.Elapsed = time.Since(start)

	slog.Info("archive run complete",
		"run_id", runID,
		"transferred", sum.Transferred,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"total_size", HumanSize(sum.Bytes),
		"elapsed", sum.Elapsed,
	)
	return sum
}

// runAccount enumerates one account and fans its files out over the
// worker pool. Transfers run while later pages are still being fetched.
func (r *Runner) runAccount(ctx context.Context, account string, sum *Summary, mu *sync.Mutex) {
	slog.Info("processing account", "account", account)

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)

	err := r.cfg.Zoom.ForEachRecording(ctx, account, r.cfg.From, r.cfg.To, func(rec zoom.Recording) error {
		if len(rec.Files) == 0 {
			slog.Debug("recording has no files", "account", account, "recording", rec.UUID)
			return nil
		}
		for _, f := range rec.Files {
			f := f
			g.Go(func() error {
				res := r.cfg.Engine.Transfer(ctx, account, rec, f)

				mu.Lock()
				defer mu.Unlock()
				switch res.Status {
				case transfer.StatusDone:
					sum.Transferred++
					sum.Bytes += res.Bytes
				case transfer.StatusSkipped:
					sum.Skipped++
				case transfer.StatusFailed:
					sum.Failed++
					sum.Failures = append(sum.Failures, Failure{
						Account:     account,
						RecordingID: rec.UUID,
						FileID:      f.ID,
						Err:         res.Err,
					})
				}
				return nil
			})
		}
		return nil
	})

	g.Wait()

	if err != nil {
		slog.Error("account processing aborted", "account", account, "error", err)
		mu.Lock()
		sum.Failed++
		sum.Failures = append(sum.Failures, Failure{Account: account, Err: err})
		mu.Unlock()
	}
}

// HumanSize renders a byte count in the largest sensible unit.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %s", float64(n)/float64(div), []string{"KB", "MB", "GB", "TB", "PB"}[exp])
}
