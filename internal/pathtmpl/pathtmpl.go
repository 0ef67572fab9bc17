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

// Package pathtmpl renders folder and file names for archived recordings
// from user-supplied templates like
//
//	{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}
//
// Meeting times are formatted with a strftime pattern in a configured
// timezone. Rendering is pure: the same template and values always produce
// the same name, and nothing is touched on disk.
package pathtmpl

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// TemplateError reports a template that references a placeholder the
// renderer does not recognize. This is a configuration mistake that would
// affect every file, so it is surfaced before any network activity.
type TemplateError struct {
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template references unknown placeholder %q", e.Placeholder)
}

// Values carries the substitution inputs derived from one recording file.
type Values struct {
	Topic         string
	RecordingID   string
	RecType       string
	FileExtension string
	StartTime     time.Time
}

// Renderer substitutes {placeholder} tokens using a fixed timezone and
// time format. Safe for concurrent use.
type Renderer struct {
	loc     *time.Location
	pattern *strftime.Strftime
}

// NewRenderer builds a renderer for the given IANA timezone name and
// strftime time format.
func NewRenderer(timezone, timeFormat string) (*Renderer, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	pattern, err := strftime.New(timeFormat)
	if err != nil {
		return nil, fmt.Errorf("parse time format %q: %w", timeFormat, err)
	}
	return &Renderer{loc: loc, pattern: pattern}, nil
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

// Render substitutes every placeholder in template from v. Unknown
// placeholders fail with a TemplateError.
func (r *Renderer) Render(template string, v Values) (string, error) {
	local := v.StartTime.In(r.loc)

	subs := map[string]string{
		"file_extension": strings.ToLower(v.FileExtension),
		"meeting_time":   r.pattern.FormatString(local),
		"year":           local.Format("2006"),
		"month":          local.Format("01"),
		"day":            local.Format("02"),
		"recording_id":   v.RecordingID,
		"rec_type":       v.RecType,
		"topic":          SanitizeName(v.Topic),
	}

	var terr *TemplateError
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		val, ok := subs[name]
		if !ok {
			if terr == nil {
				terr = &TemplateError{Placeholder: name}
			}
			return m
		}
		return val
	})
	if terr != nil {
		return "", terr
	}
	return out, nil
}

// Validate renders template against placeholder values so a misconfigured
// template fails at startup rather than mid-run.
func (r *Renderer) Validate(template string) error {
	_, err := r.Render(template, Values{
		Topic:         "topic",
		RecordingID:   "id",
		RecType:       "rec_type",
		FileExtension: "ext",
		StartTime:     time.Now(),
	})
	return err
}

// Characters that are illegal in file or folder names on at least one of
// the filesystems we archive to, plus ASCII control characters.
var illegalNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeName strips characters that cannot appear in a file or folder
// name. Applied to topics before substitution so a topic can never smuggle
// a path separator into the rendered name.
func SanitizeName(name string) string {
	return illegalNameChars.ReplaceAllString(name, "")
}
