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

import "time"

// Recording is one cloud-recorded meeting session together with its
// downloadable files. Recordings are immutable once fetched and passed by
// value downstream.
type Recording struct {
	UUID      string          `json:"uuid"`
	MeetingID int64           `json:"id"`
	Topic     string          `json:"topic"`
	StartTime time.Time       `json:"start_time"`
	TotalSize int64           `json:"total_size"`
	Passcode  string          `json:"recording_play_passcode"`
	Files     []RecordingFile `json:"recording_files"`
}

// RecordingFile is one downloadable artifact (video, audio, transcript,
// timeline) belonging to a recording.
type RecordingFile struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	FileExtension string `json:"file_extension"`
	FileSize      int64  `json:"file_size"`
	RecordingType string `json:"recording_type"`
	DownloadURL   string `json:"download_url"`
	Status        string `json:"status"`
}

// RecType returns the recording-type label used in path templates. Files
// reported without a file_type are still being processed on the vendor
// side; TIMELINE files carry no recording_type of their own.
func (f RecordingFile) RecType() string {
	switch f.FileType {
	case "":
		return "incomplete"
	case "TIMELINE":
		return f.FileType
	default:
		return f.RecordingType
	}
}

// User is one account member returned by the user listing endpoint.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// recordingsPage is one page of the per-user recordings listing.
type recordingsPage struct {
	NextPageToken string      `json:"next_page_token"`
	Meetings      []Recording `json:"meetings"`
}

// usersPage is one page of the account user listing, which paginates by
// page number rather than continuation token.
type usersPage struct {
	PageCount int    `json:"page_count"`
	Users     []User `json:"users"`
}
