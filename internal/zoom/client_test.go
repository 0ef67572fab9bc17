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

package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/bcem/archiver/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func testClient(server *httptest.Server) *Client {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
	return NewClient(server.Client(), tokens, server.URL, fastRetry())
}

func recordingJSON(uuid, start string, fileIDs ...string) map[string]any {
	files := make([]map[string]any, 0, len(fileIDs))
	for _, id := range fileIDs {
		files = append(files, map[string]any{
			"id":             id,
			"file_type":      "MP4",
			"file_extension": "MP4",
			"file_size":      1024,
			"recording_type": "shared_screen_with_speaker_view",
			"download_url":   "https://example.invalid/rec/" + id,
		})
	}
	return map[string]any{
		"uuid":            uuid,
		"id":              42,
		"topic":           "Topic " + uuid,
		"start_time":      start,
		"total_size":      2048,
		"recording_files": files,
	}
}

func writePage(w http.ResponseWriter, nextToken string, meetings ...map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	if meetings == nil {
		meetings = []map[string]any{}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"next_page_token": nextToken,
		"meetings":        meetings,
	})
}

func collect(t *testing.T, c *Client, account string, from, to time.Time) []Recording {
	t.Helper()
	var got []Recording
	err := c.ForEachRecording(context.Background(), account, from, to, func(r Recording) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachRecording failed: %v", err)
	}
	return got
}

func TestForEachRecording_FollowsContinuationToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/user@test.com/recordings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		switch r.URL.Query().Get("next_page_token") {
		case "":
			writePage(w, "tok-2",
				recordingJSON("rec-1", "2024-03-01T10:00:00Z", "f1"),
				recordingJSON("rec-2", "2024-03-02T10:00:00Z", "f2"),
			)
		case "tok-2":
			writePage(w, "", recordingJSON("rec-3", "2024-03-03T10:00:00Z", "f3"))
		default:
			t.Errorf("unexpected token %q", r.URL.Query().Get("next_page_token"))
		}
	}))
	defer server.Close()

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	got := collect(t, testClient(server), "user@test.com", from, to)

	if len(got) != 3 {
		t.Fatalf("got %d recordings, want 3", len(got))
	}
	if got[2].UUID != "rec-3" {
		t.Errorf("last recording = %q, want rec-3 (API order preserved)", got[2].UUID)
	}
	if len(got[0].Files) != 1 || got[0].Files[0].ID != "f1" {
		t.Errorf("rec-1 files not parsed: %+v", got[0].Files)
	}
}

func TestForEachRecording_SplitsWideWindows(t *testing.T) {
	var windows []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		windows = append(windows, r.URL.Query().Get("from")+".."+r.URL.Query().Get("to"))
		writePage(w, "")
	}))
	defer server.Close()

	// 70 days: three chunks of at most 30 days each.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	collect(t, testClient(server), "u", from, to)

	want := []string{
		"2024-01-01..2024-01-30",
		"2024-01-31..2024-02-29",
		"2024-03-01..2024-03-10",
	}
	if len(windows) != len(want) {
		t.Fatalf("made %d window requests %v, want %d", len(windows), windows, len(want))
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Errorf("window %d = %q, want %q", i, windows[i], want[i])
		}
	}
}

func TestForEachRecording_FiltersOutOfRangeStartTimes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, "",
			recordingJSON("too-early", "2024-02-28T23:59:00Z"),
			recordingJSON("in-range", "2024-03-05T14:30:00Z"),
			recordingJSON("last-day", "2024-03-10T23:00:00Z"),
			recordingJSON("too-late", "2024-03-11T00:30:00Z"),
		)
	}))
	defer server.Close()

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	got := collect(t, testClient(server), "u", from, to)

	if len(got) != 2 {
		t.Fatalf("got %d recordings, want 2", len(got))
	}
	if got[0].UUID != "in-range" || got[1].UUID != "last-day" {
		t.Errorf("yielded %q and %q, want in-range and last-day", got[0].UUID, got[1].UUID)
	}
}

func TestForEachRecording_RetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, "", recordingJSON("rec-1", "2024-03-05T10:00:00Z"))
	}))
	defer server.Close()

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	got := collect(t, testClient(server), "u", from, to)

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(got) != 1 {
		t.Errorf("got %d recordings, want 1", len(got))
	}
}

func TestForEachRecording_ExhaustionIsEnumerationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	err := testClient(server).ForEachRecording(context.Background(), "u", from, from, func(Recording) error {
		t.Error("fn called despite listing failure")
		return nil
	})

	var enumErr *EnumerationError
	if !errors.As(err, &enumErr) {
		t.Fatalf("err = %v, want EnumerationError", err)
	}
	if enumErr.Account != "u" {
		t.Errorf("Account = %q, want u", enumErr.Account)
	}
}

func TestForEachRecording_UnauthorizedIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	err := testClient(server).ForEachRecording(context.Background(), "u", from, from, func(Recording) error { return nil })

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestListUsers_PagesByPageNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page_number") {
		case "1":
			json.NewEncoder(w).Encode(map[string]any{
				"page_count": 2,
				"users": []map[string]string{
					{"id": "u1", "email": "a@test.com"},
					{"id": "u2", "email": "b@test.com"},
				},
			})
		case "2":
			json.NewEncoder(w).Encode(map[string]any{
				"page_count": 2,
				"users":      []map[string]string{{"id": "u3", "email": "c@test.com"}},
			})
		default:
			t.Errorf("unexpected page_number %q", r.URL.Query().Get("page_number"))
		}
	}))
	defer server.Close()

	users, err := testClient(server).ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	if users[2].Email != "c@test.com" {
		t.Errorf("last user = %q, want c@test.com", users[2].Email)
	}
}

func TestDownload_AuthenticatesViaQueryParams(t *testing.T) {
	body := []byte("recording bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "test-token" {
			t.Errorf("access_token = %q, want test-token", got)
		}
		if got := r.URL.Query().Get("playback_access_token"); got != "passcode-1" {
			t.Errorf("playback_access_token = %q, want passcode-1", got)
		}
		w.Write(body)
	}))
	defer server.Close()

	c := testClient(server)
	var buf bytes.Buffer
	n, err := c.Download(context.Background(), RecordingFile{ID: "f1", DownloadURL: server.URL + "/rec/f1"}, "passcode-1", &buf)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if n != int64(len(body)) || !bytes.Equal(buf.Bytes(), body) {
		t.Errorf("downloaded %d bytes %q, want %q", n, buf.Bytes(), body)
	}
}

func TestRecType(t *testing.T) {
	tests := []struct {
		file RecordingFile
		want string
	}{
		{RecordingFile{FileType: "MP4", RecordingType: "shared_screen"}, "shared_screen"},
		{RecordingFile{FileType: "TIMELINE"}, "TIMELINE"},
		{RecordingFile{FileType: ""}, "incomplete"},
	}
	for _, tt := range tests {
		if got := tt.file.RecType(); got != tt.want {
			t.Errorf("RecType(%+v) = %q, want %q", tt.file, got, tt.want)
		}
	}
}
