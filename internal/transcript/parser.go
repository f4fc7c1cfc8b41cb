// Copyright 2025 Insights Agent Project
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

// Package transcript parses real-time transcript webhook payloads and
// deduplicates trigger events across deliveries and restarts.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Fragment is one parsed transcript webhook delivery
type Fragment struct {
	TranscriptID string
	BotID        string
	Text         string
}

// rawTranscript mirrors the vendor payload shape
type rawTranscript struct {
	Event string `json:"event"`
	Data  struct {
		Bot struct {
			ID string `json:"id"`
		} `json:"bot"`
		Transcript struct {
			ID string `json:"id"`
		} `json:"transcript"`
		Data struct {
			Words []struct {
				Text string `json:"text"`
			} `json:"words"`
		} `json:"data"`
	} `json:"data"`
}

// Parse decodes a transcript webhook body into a Fragment. The word
// texts are joined with single spaces. A missing transcript id is a
// malformed-input error since it is the dedup key.
func Parse(body []byte) (Fragment, error) {
	var raw rawTranscript
	if err := json.Unmarshal(body, &raw); err != nil {
		return Fragment{}, fmt.Errorf("failed to decode transcript payload: %w", err)
	}

	if raw.Data.Transcript.ID == "" {
		return Fragment{}, fmt.Errorf("transcript payload missing transcript id")
	}

	words := make([]string, 0, len(raw.Data.Data.Words))
	for _, w := range raw.Data.Data.Words {
		if w.Text != "" {
			words = append(words, w.Text)
		}
	}

	return Fragment{
		TranscriptID: raw.Data.Transcript.ID,
		BotID:        raw.Data.Bot.ID,
		Text:         strings.Join(words, " "),
	}, nil
}

// ContainsTrigger reports whether the fragment text contains the trigger
// phrase, case-insensitively.
func (f Fragment) ContainsTrigger(phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(f.Text), strings.ToLower(phrase))
}
