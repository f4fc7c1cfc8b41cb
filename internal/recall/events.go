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

package recall

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a bot status change reported by the platform
type EventType string

const (
	EventJoining                   EventType = "bot.joining"
	EventInWaitingRoom             EventType = "bot.in_waiting_room"
	EventInCallNotRecording        EventType = "bot.in_call_not_recording"
	EventRecordingPermissionAllow  EventType = "bot.recording_permission_allowed"
	EventRecordingPermissionDenied EventType = "bot.recording_permission_denied"
	EventInCallRecording           EventType = "bot.in_call_recording"
	EventCallEnded                 EventType = "bot.call_ended"
	EventDone                      EventType = "bot.done"
	EventFatal                     EventType = "bot.fatal"
	EventRecordingProcessing       EventType = "recording.processing"
)

var eventDescriptions = map[EventType]string{
	EventJoining:                   "The bot has acknowledged the request to join the call, and is in the process of connecting.",
	EventInWaitingRoom:             "The bot is in the waiting room of the meeting.",
	EventInCallNotRecording:        "The bot has joined the meeting, however is not recording yet.",
	EventRecordingPermissionAllow:  "The bot has joined the meeting and its request to record the meeting has been allowed by the host.",
	EventRecordingPermissionDenied: "The bot has joined the meeting and its request to record the meeting has been denied.",
	EventInCallRecording:           "The bot is in the meeting, and is currently recording the audio and video.",
	EventCallEnded:                 "The bot has left the call, and the real-time transcription is complete.",
	EventDone:                      "The bot has shut down.",
	EventFatal:                     "The bot has encountered an error that prevented it from joining the call.",
	EventRecordingProcessing:       "The bot is processing the recording.",
}

// Event is one status webhook payload from the bot platform
type Event struct {
	Type      EventType
	BotID     string
	Code      string
	SubCode   string
	UpdatedAt time.Time
}

// rawEvent mirrors the vendor payload shape
type rawEvent struct {
	Event string `json:"event"`
	Data  struct {
		Bot struct {
			ID       string         `json:"id"`
			Metadata map[string]any `json:"metadata"`
		} `json:"bot"`
		Data struct {
			Code      string `json:"code"`
			SubCode   string `json:"sub_code"`
			UpdatedAt string `json:"updated_at"`
		} `json:"data"`
	} `json:"data"`
}

// ParseEvent decodes a status webhook body. A decode failure is a
// malformed-input error; an unknown event type is not (callers log and
// ignore those).
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("failed to decode event payload: %w", err)
	}

	event := Event{
		Type:    EventType(raw.Event),
		BotID:   raw.Data.Bot.ID,
		Code:    raw.Data.Data.Code,
		SubCode: raw.Data.Data.SubCode,
	}

	if ts := raw.Data.Data.UpdatedAt; ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			event.UpdatedAt = parsed
		}
	}

	return event, nil
}

// Recognized reports whether the event type is part of the known set
func (e Event) Recognized() bool {
	_, ok := eventDescriptions[e.Type]
	return ok
}

// Description returns the human-readable description of the event type
func (e Event) Description() string {
	if desc, ok := eventDescriptions[e.Type]; ok {
		return desc
	}
	return "Unknown event type"
}
