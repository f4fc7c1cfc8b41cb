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

import "testing"

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"event": "bot.in_call_recording",
		"data": {
			"bot": {"id": "bot-abc", "metadata": {}},
			"data": {"code": "in_call_recording", "sub_code": null, "updated_at": "2025-02-10T18:30:00Z"}
		}
	}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.Type != EventInCallRecording {
		t.Errorf("type = %q, want %q", event.Type, EventInCallRecording)
	}
	if event.BotID != "bot-abc" {
		t.Errorf("bot id = %q, want bot-abc", event.BotID)
	}
	if event.Code != "in_call_recording" {
		t.Errorf("code = %q", event.Code)
	}
	if event.UpdatedAt.IsZero() {
		t.Error("expected updated_at to be parsed")
	}
	if !event.Recognized() {
		t.Error("expected recognized event type")
	}
}

func TestParseEventMalformed(t *testing.T) {
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestParseEventUnknownType(t *testing.T) {
	event, err := ParseEvent([]byte(`{"event": "bot.levitating", "data": {"bot": {"id": "b1"}}}`))
	if err != nil {
		t.Fatalf("unknown event types should not be parse errors: %v", err)
	}
	if event.Recognized() {
		t.Error("expected unrecognized event type")
	}
	if event.Description() != "Unknown event type" {
		t.Errorf("description = %q", event.Description())
	}
}

func TestEventDescriptions(t *testing.T) {
	known := []EventType{
		EventJoining, EventInWaitingRoom, EventInCallNotRecording,
		EventRecordingPermissionAllow, EventRecordingPermissionDenied,
		EventInCallRecording, EventCallEnded, EventDone, EventFatal,
		EventRecordingProcessing,
	}
	for _, et := range known {
		event := Event{Type: et}
		if event.Description() == "Unknown event type" {
			t.Errorf("missing description for %q", et)
		}
	}
}
