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

// Package config loads the archiver's run configuration from a YAML file
// with ${VAR} environment expansion, and validates it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ZoomConfig holds Zoom server-to-server OAuth app credentials.
type ZoomConfig struct {
	AccountID    string `yaml:"account_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SharepointConfig holds the upload target: an Azure app registration and
// the document drive the archive lands on.
type SharepointConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	DriveID      string `yaml:"drive_id"`
	RemoteFolder string `yaml:"remote_folder"`
}

// RecordingsConfig holds the date window and naming settings.
type RecordingsConfig struct {
	StartDate time.Time
	EndDate   time.Time
	Timezone  string
	Strftime  string
	Filename  string
	Folder    string
}

// StorageConfig holds local paths.
type StorageConfig struct {
	DownloadDir  string `yaml:"download_dir"`
	CompletedLog string `yaml:"completed_log"`
}

// TransferConfig bounds concurrency and retries.
type TransferConfig struct {
	Workers     int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Config holds all configuration for an archiver run.
type Config struct {
	Zoom       ZoomConfig
	Sharepoint SharepointConfig
	Recordings RecordingsConfig
	Storage    StorageConfig
	Transfer   TransferConfig
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Zoom       ZoomConfig       `yaml:"zoom"`
	Sharepoint SharepointConfig `yaml:"sharepoint"`
	Recordings struct {
		StartDate string `yaml:"start_date"`
		EndDate   string `yaml:"end_date"`
		Timezone  string `yaml:"timezone"`
		Strftime  string `yaml:"strftime"`
		Filename  string `yaml:"filename"`
		Folder    string `yaml:"folder"`
	} `yaml:"recordings"`
	Storage  StorageConfig `yaml:"storage"`
	Transfer struct {
		Workers     int    `yaml:"workers"`
		MaxAttempts int    `yaml:"max_attempts"`
		BaseDelay   string `yaml:"base_delay"`
	} `yaml:"transfer"`
}

// Load reads configuration from the YAML file at path, expanding ${VAR}
// references from the environment before parsing so secrets can stay out
// of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Zoom:       raw.Zoom,
		Sharepoint: raw.Sharepoint,
		Storage:    raw.Storage,
	}

	if cfg.Zoom.AccountID == "" || cfg.Zoom.ClientID == "" || cfg.Zoom.ClientSecret == "" {
		return nil, fmt.Errorf("zoom account_id, client_id, and client_secret are required")
	}
	if cfg.Sharepoint.TenantID == "" || cfg.Sharepoint.ClientID == "" || cfg.Sharepoint.DriveID == "" {
		return nil, fmt.Errorf("sharepoint tenant_id, client_id, and drive_id are required")
	}
	if cfg.Sharepoint.RemoteFolder == "" {
		cfg.Sharepoint.RemoteFolder = "zoom-recordings"
	}

	now := time.Now().UTC()
	cfg.Recordings.StartDate, err = parseDate(raw.Recordings.StartDate,
		time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, fmt.Errorf("recordings start_date: %w", err)
	}
	cfg.Recordings.EndDate, err = parseDate(raw.Recordings.EndDate,
		time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, fmt.Errorf("recordings end_date: %w", err)
	}
	if cfg.Recordings.StartDate.After(cfg.Recordings.EndDate) {
		return nil, fmt.Errorf("recordings start_date %s is after end_date %s",
			cfg.Recordings.StartDate.Format("2006-01-02"),
			cfg.Recordings.EndDate.Format("2006-01-02"))
	}

	cfg.Recordings.Timezone = defaultString(raw.Recordings.Timezone, "UTC")
	if _, err := time.LoadLocation(cfg.Recordings.Timezone); err != nil {
		return nil, fmt.Errorf("recordings timezone: %w", err)
	}
	cfg.Recordings.Strftime = defaultString(raw.Recordings.Strftime, "%Y.%m.%d - %I.%M %p UTC")
	cfg.Recordings.Filename = defaultString(raw.Recordings.Filename,
		"{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}")
	cfg.Recordings.Folder = defaultString(raw.Recordings.Folder, "{topic} - {year}.{month}.{day}")

	cfg.Storage.DownloadDir = defaultString(cfg.Storage.DownloadDir, "downloads")
	cfg.Storage.CompletedLog = defaultString(cfg.Storage.CompletedLog, "completed-downloads.log")

	cfg.Transfer.Workers = raw.Transfer.Workers
	if cfg.Transfer.Workers <= 0 {
		cfg.Transfer.Workers = envOrDefaultInt("ARCHIVER_WORKERS", 4)
	}
	cfg.Transfer.MaxAttempts = raw.Transfer.MaxAttempts
	if cfg.Transfer.MaxAttempts <= 0 {
		cfg.Transfer.MaxAttempts = 4
	}
	cfg.Transfer.BaseDelay = time.Second
	if raw.Transfer.BaseDelay != "" {
		d, err := time.ParseDuration(raw.Transfer.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("transfer base_delay: %w", err)
		}
		cfg.Transfer.BaseDelay = d
	}

	return cfg, nil
}

// parseDate accepts inclusive calendar dates as YYYY-MM-DD.
func parseDate(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

func defaultString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
