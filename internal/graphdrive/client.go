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

// Package graphdrive uploads archived recording files to a SharePoint
// document library through the Microsoft Graph drive API: idempotent
// folder creation plus chunked upload sessions for the media files.
package graphdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bcem/archiver/internal/retry"
)

// DefaultBaseURL is the root of the Microsoft Graph API.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// defaultChunkSize is 16 × 320 KiB. Graph requires upload chunks to be a
// multiple of 320 KiB, final chunk excepted.
const defaultChunkSize = 5 * 1024 * 1024

// Client talks to one document drive. The httpClient must already carry
// authentication; how the credential was obtained (client secret or an
// interactive browser flow) is the caller's concern.
type Client struct {
	httpClient *http.Client
	baseURL    string
	driveID    string
	retryCfg   retry.Config
	chunkSize  int64
}

// NewClient creates a drive client.
func NewClient(httpClient *http.Client, baseURL, driveID string, retryCfg retry.Config) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		driveID:    driveID,
		retryCfg:   retryCfg,
		chunkSize:  defaultChunkSize,
	}
}

// EnsureFolder creates every segment of folderPath under the drive root.
// Creating a folder that already exists is not an error, so the call is
// idempotent and safe to repeat for every file in the same recording.
func (c *Client) EnsureFolder(ctx context.Context, folderPath string) error {
	parent := ""
	for _, seg := range strings.Split(strings.Trim(folderPath, "/"), "/") {
		if seg == "" {
			continue
		}
		if err := c.createChildFolder(ctx, parent, seg); err != nil {
			return fmt.Errorf("ensure folder %s: %w", folderPath, err)
		}
		if parent == "" {
			parent = seg
		} else {
			parent = parent + "/" + seg
		}
	}
	return nil
}

// createChildFolder creates one folder under parent (drive root when
// parent is empty). A name conflict means the folder already exists.
func (c *Client) createChildFolder(ctx context.Context, parent, name string) error {
	var childrenURL string
	if parent == "" {
		childrenURL = fmt.Sprintf("%s/drives/%s/root/children", c.baseURL, c.driveID)
	} else {
		childrenURL = fmt.Sprintf("%s/drives/%s/root:/%s:/children", c.baseURL, c.driveID, escapePath(parent))
	}

	body, err := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	if err != nil {
		return fmt.Errorf("marshal folder request: %w", err)
	}

	return retry.Do(ctx, c.retryCfg, "create folder", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, childrenURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &retry.Transient{Err: fmt.Errorf("create folder %s: %w", name, err)}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			return nil
		case resp.StatusCode == http.StatusConflict:
			// nameAlreadyExists — the folder is there, which is what we want
			return nil
		default:
			return graphError("create folder", resp)
		}
	})
}

// uploadSession mirrors the createUploadSession response.
type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

// Upload pushes the local file to remotePath on the drive through an
// upload session. An existing item at remotePath is replaced, so retrying
// an interrupted archive run converges rather than erroring. Session
// creation and each chunk carry their own retry budget; the local file is
// left untouched throughout.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}
	total := info.Size()

	// An upload session with no chunks never completes, so empty files go
	// through the simple content PUT instead.
	if total == 0 {
		err := retry.Do(ctx, c.retryCfg, "upload empty file", func(ctx context.Context) error {
			return c.putContent(ctx, remotePath)
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", remotePath, err)
		}
		return nil
	}

	var session uploadSession
	err = retry.Do(ctx, c.retryCfg, "create upload session", func(ctx context.Context) error {
		return c.createUploadSession(ctx, remotePath, &session)
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}

	for offset := int64(0); offset < total; offset += c.chunkSize {
		n := c.chunkSize
		if offset+n > total {
			n = total - offset
		}

		err := retry.Do(ctx, c.retryCfg, "upload chunk", func(ctx context.Context) error {
			return c.putChunk(ctx, session.UploadURL, f, offset, n, total)
		})
		if err != nil {
			return fmt.Errorf("upload %s at offset %d: %w", remotePath, offset, err)
		}
	}

	slog.Debug("upload complete", "remote_path", remotePath, "bytes", total)
	return nil
}

// putContent uploads a zero-length item body directly.
func (c *Client) putContent(ctx context.Context, remotePath string) error {
	contentURL := fmt.Sprintf("%s/drives/%s/root:/%s:/content", c.baseURL, c.driveID, escapePath(remotePath))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, contentURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retry.Transient{Err: fmt.Errorf("put content: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return graphError("put content", resp)
	}
	return nil
}

func (c *Client) createUploadSession(ctx context.Context, remotePath string, out *uploadSession) error {
	sessionURL := fmt.Sprintf("%s/drives/%s/root:/%s:/createUploadSession", c.baseURL, c.driveID, escapePath(remotePath))

	body, err := json.Marshal(map[string]any{
		"item": map[string]any{
			"@microsoft.graph.conflictBehavior": "replace",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sessionURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retry.Transient{Err: fmt.Errorf("create upload session: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return graphError("create upload session", resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upload session: %w", err)
	}
	if out.UploadURL == "" {
		return fmt.Errorf("upload session response missing uploadUrl")
	}
	return nil
}

// putChunk sends one Content-Range slice of the file to the upload URL.
// The reader is re-created per attempt so a retried chunk starts clean.
func (c *Client) putChunk(ctx context.Context, uploadURL string, f *os.File, offset, n, total int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, io.NewSectionReader(f, offset, n))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = n
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+n-1, total))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retry.Transient{Err: fmt.Errorf("put chunk: %w", err)}
	}
	defer resp.Body.Close()

	// 202 = more chunks expected, 200/201 = item created on final chunk
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		return graphError("put chunk", resp)
	}
}

// graphError classifies a non-success Graph response: throttling and
// server errors are transient (honoring Retry-After), the rest permanent.
func graphError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &retry.Transient{
			Err:        fmt.Errorf("%s returned HTTP %d: %s", op, resp.StatusCode, body),
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return fmt.Errorf("%s returned HTTP %d: %s", op, resp.StatusCode, body)
}

// escapePath percent-encodes each segment of a drive path while keeping
// the separators intact.
func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
