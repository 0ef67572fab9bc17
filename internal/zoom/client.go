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

// Package zoom implements the Zoom REST API (v2) client used by the
// archiver: per-user cloud recording enumeration, account user listing,
// and recording file download.
package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/bcem/archiver/internal/retry"
)

// DefaultBaseURL is the root of the Zoom REST API.
const DefaultBaseURL = "https://api.zoom.us/v2"

const (
	// pageSize is the maximum the recordings endpoint allows.
	pageSize = 300

	// windowDays caps each from/to range. The recordings endpoint rejects
	// date ranges wider than a month, so longer windows are walked in
	// 30-day chunks.
	windowDays = 30
)

// Client talks to the Zoom REST API. The httpClient must already carry
// bearer authentication; the token source is also needed directly because
// recording downloads authenticate via query parameter, not header.
type Client struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	baseURL    string
	retryCfg   retry.Config
}

// NewClient creates a Zoom API client.
func NewClient(httpClient *http.Client, tokens oauth2.TokenSource, baseURL string, retryCfg retry.Config) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		baseURL:    baseURL,
		retryCfg:   retryCfg,
	}
}

// ForEachRecording enumerates the account's cloud recordings with start
// times inside the inclusive [from, to] date window, in the order the API
// returns them. The window is walked in 30-day chunks, each chunk paged
// via continuation token, so the sequence is lazy: fn is called as pages
// arrive. Re-invoking re-fetches from the API; nothing is cached.
//
// A page request that exhausts its retry budget aborts enumeration with an
// EnumerationError (or AuthError for credential failures). An error from
// fn aborts enumeration and is returned as-is.
func (c *Client) ForEachRecording(ctx context.Context, account string, from, to time.Time, fn func(Recording) error) error {
	// Client-side window guard: the API filters by date too, but the
	// inclusive-bound semantics must hold even against a sloppy server.
	lower := from
	upper := to.AddDate(0, 0, 1)

	for ws := from; !ws.After(to); ws = ws.AddDate(0, 0, windowDays) {
		we := ws.AddDate(0, 0, windowDays-1)
		if we.After(to) {
			we = to
		}

		token := ""
		for page := 1; ; page++ {
			var pg *recordingsPage
			err := retry.Do(ctx, c.retryCfg, "list recordings", func(ctx context.Context) error {
				var ferr error
				pg, ferr = c.fetchRecordingsPage(ctx, account, ws, we, token)
				return ferr
			})
			if err != nil {
				if errors.Is(err, ErrUnauthorized) {
					return &AuthError{Account: account, Err: err}
				}
				return &EnumerationError{Account: account, Err: err}
			}

			slog.Debug("recordings page fetched",
				"account", account,
				"from", ws.Format("2006-01-02"),
				"to", we.Format("2006-01-02"),
				"page", page,
				"recordings", len(pg.Meetings),
			)

			for _, rec := range pg.Meetings {
				if rec.StartTime.Before(lower) || !rec.StartTime.Before(upper) {
					slog.Debug("skipping recording outside date window",
						"recording", rec.UUID,
						"start_time", rec.StartTime,
					)
					continue
				}
				if err := fn(rec); err != nil {
					return err
				}
			}

			token = pg.NextPageToken
			if token == "" {
				break
			}
		}
	}

	return nil
}

// fetchRecordingsPage retrieves one page of the per-user recordings list.
func (c *Client) fetchRecordingsPage(ctx context.Context, account string, from, to time.Time, token string) (*recordingsPage, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("page_size", strconv.Itoa(pageSize))
	if token != "" {
		params.Set("next_page_token", token)
	}

	listURL := fmt.Sprintf("%s/users/%s/recordings?%s", c.baseURL, url.PathEscape(account), params.Encode())

	var pg recordingsPage
	if err := c.getJSON(ctx, listURL, &pg); err != nil {
		return nil, err
	}
	return &pg, nil
}

// ListUsers enumerates every user in the account. Used to build the
// target account set when no explicit users are supplied. The user
// listing paginates by page number, unlike the recordings listing.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var all []User

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page_size", strconv.Itoa(pageSize))
		params.Set("page_number", strconv.Itoa(page))
		listURL := fmt.Sprintf("%s/users?%s", c.baseURL, params.Encode())

		var pg usersPage
		err := retry.Do(ctx, c.retryCfg, "list users", func(ctx context.Context) error {
			return c.getJSON(ctx, listURL, &pg)
		})
		if err != nil {
			return nil, fmt.Errorf("list account users: %w", err)
		}

		all = append(all, pg.Users...)
		if page >= pg.PageCount {
			break
		}
	}

	slog.Info("account users listed", "count", len(all))
	return all, nil
}

// Download streams one recording file to w and returns the byte count.
// The download endpoint authenticates via access_token query parameter;
// passcode-protected recordings additionally need the playback passcode.
func (c *Client) Download(ctx context.Context, f RecordingFile, passcode string, w io.Writer) (int64, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return 0, fmt.Errorf("zoom token: %w", err)
	}

	dlURL := f.DownloadURL + "?access_token=" + url.QueryEscape(tok.AccessToken)
	if passcode != "" {
		dlURL += "&playback_access_token=" + url.QueryEscape(passcode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dlURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &retry.Transient{Err: fmt.Errorf("download %s: %w", f.ID, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError("download", resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &retry.Transient{Err: fmt.Errorf("download %s: stream interrupted after %d bytes: %w", f.ID, n, err)}
	}
	return n, nil
}

// getJSON issues an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retry.Transient{Err: fmt.Errorf("zoom API request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("zoom API", resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode zoom API response: %w", err)
	}
	return nil
}

// statusError classifies a non-200 response. Rate limits and server errors
// are transient (with any Retry-After hint attached); credential failures
// map to ErrUnauthorized; everything else is permanent.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &retry.Transient{
			Err:        fmt.Errorf("%s returned HTTP %d: %s", op, resp.StatusCode, body),
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s returned HTTP %d: %w", op, resp.StatusCode, ErrUnauthorized)
	default:
		return fmt.Errorf("%s returned HTTP %d: %s", op, resp.StatusCode, body)
	}
}
