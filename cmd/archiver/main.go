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

// Zoom Recording Archiver
//
// Enumerates cloud recordings across Zoom accounts, downloads each file,
// uploads it to a SharePoint document drive, and records completions so
// re-runs only pick up what is new.
//
// Usage:
//
//	go run ./cmd/archiver/ [--config config.yaml] [--user user@org.com | --userfile users.json] [--dry-run]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/bcem/archiver/internal/archive"
	"github.com/bcem/archiver/internal/auth"
	"github.com/bcem/archiver/internal/config"
	"github.com/bcem/archiver/internal/graphdrive"
	"github.com/bcem/archiver/internal/pathtmpl"
	"github.com/bcem/archiver/internal/retry"
	"github.com/bcem/archiver/internal/tracker"
	"github.com/bcem/archiver/internal/transfer"
	"github.com/bcem/archiver/internal/zoom"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	configFlag := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	userFlag := flag.String("user", "", "Archive a single account by email (optional)")
	userfileFlag := flag.String("userfile", "", "Path to a JSON array of account emails (optional)")
	dryRunFlag := flag.Bool("dry-run", false, "Enumerate and log planned transfers without downloading or uploading")
	flag.Parse()

	if *userFlag != "" && *userfileFlag != "" {
		fmt.Fprintf(os.Stderr, "Error: --user and --userfile are mutually exclusive\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load(*configFlag)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Validate naming templates before any network activity; a template
	// typo fails the whole run, so fail it up front.
	renderer, err := pathtmpl.NewRenderer(cfg.Recordings.Timezone, cfg.Recordings.Strftime)
	if err != nil {
		slog.Error("invalid recording time format", "error", err)
		os.Exit(1)
	}
	if err := renderer.Validate(cfg.Recordings.Filename); err != nil {
		slog.Error("invalid filename template", "template", cfg.Recordings.Filename, "error", err)
		os.Exit(1)
	}
	if err := renderer.Validate(cfg.Recordings.Folder); err != nil {
		slog.Error("invalid folder template", "template", cfg.Recordings.Folder, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Completed log ---
	done, err := tracker.Open(cfg.Storage.CompletedLog)
	if err != nil {
		slog.Error("failed to open completed log", "path", cfg.Storage.CompletedLog, "error", err)
		os.Exit(1)
	}
	defer done.Close()

	// --- Download directory ---
	if err := os.MkdirAll(cfg.Storage.DownloadDir, 0o755); err != nil {
		slog.Error("failed to create download directory", "path", cfg.Storage.DownloadDir, "error", err)
		os.Exit(1)
	}
	if err := transfer.CleanStale(cfg.Storage.DownloadDir); err != nil {
		slog.Warn("failed to sweep stale partial downloads", "error", err)
	}

	retryCfg := retry.Config{
		MaxAttempts: cfg.Transfer.MaxAttempts,
		BaseDelay:   cfg.Transfer.BaseDelay,
		MaxDelay:    30 * time.Second,
	}

	// --- Zoom client ---
	tokens := auth.NewZoomTokenSource(ctx, auth.ZoomConfig{
		AccountID:    cfg.Zoom.AccountID,
		ClientID:     cfg.Zoom.ClientID,
		ClientSecret: cfg.Zoom.ClientSecret,
	})
	if _, err := tokens.Token(); err != nil {
		slog.Error("zoom authentication failed", "error", err)
		os.Exit(1)
	}
	zoomHTTP := oauth2.NewClient(ctx, tokens)
	zoomClient := zoom.NewClient(zoomHTTP, tokens, zoom.DefaultBaseURL, retryCfg)

	// --- Graph drive client ---
	graphHTTP := auth.NewGraphClient(ctx, cfg.Sharepoint.TenantID, cfg.Sharepoint.ClientID, cfg.Sharepoint.ClientSecret)
	drive := graphdrive.NewClient(graphHTTP, graphdrive.DefaultBaseURL, cfg.Sharepoint.DriveID, retryCfg)

	// --- Resolve accounts ---
	accounts, err := resolveAccounts(ctx, zoomClient, *userFlag, *userfileFlag)
	if err != nil {
		slog.Error("failed to resolve accounts", "error", err)
		os.Exit(1)
	}
	if len(accounts) == 0 {
		slog.Error("no accounts to archive")
		os.Exit(1)
	}
	slog.Info("resolved accounts", "count", len(accounts))

	// --- Run ---
	engine := transfer.NewEngine(transfer.Config{
		Zoom:             zoomClient,
		Drive:            drive,
		Tracker:          done,
		Renderer:         renderer,
		FilenameTemplate: cfg.Recordings.Filename,
		FolderTemplate:   cfg.Recordings.Folder,
		RemoteRoot:       cfg.Sharepoint.RemoteFolder,
		DownloadDir:      cfg.Storage.DownloadDir,
		Retry:            retryCfg,
		DryRun:           *dryRunFlag,
	})

	runner := archive.NewRunner(archive.RunnerConfig{
		Zoom:     zoomClient,
		Engine:   engine,
		Accounts: accounts,
		From:     cfg.Recordings.StartDate,
		To:       cfg.Recordings.EndDate,
		Workers:  cfg.Transfer.Workers,
	})

	sum := runner.Run(ctx)

	for _, f := range sum.Failures {
		slog.Error("transfer failed",
			"account", f.Account,
			"recording_id", f.RecordingID,
			"file_id", f.FileID,
			"error", f.Err,
		)
	}

	if sum.Failed > 0 {
		os.Exit(1)
	}
}

// resolveAccounts picks the account set for this run: a single --user, the
// contents of --userfile (a JSON array of emails), or every active user on
// the Zoom account.
func resolveAccounts(ctx context.Context, client *zoom.Client, user, userfile string) ([]string, error) {
	if user != "" {
		return []string{user}, nil
	}
	if userfile != "" {
		data, err := os.ReadFile(userfile)
		if err != nil {
			return nil, fmt.Errorf("read userfile: %w", err)
		}
		var emails []string
		if err := json.Unmarshal(data, &emails); err != nil {
			return nil, fmt.Errorf("parse userfile %s: %w", userfile, err)
		}
		return emails, nil
	}

	users, err := client.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}
