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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap/zaptest"
)

// completionBody is the subset of the chat-completions request the fake
// server inspects.
type completionBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name string `json:"name"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func fakeCompletionServer(t *testing.T, content string, inspect func(completionBody)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}

		var body completionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if inspect != nil {
			inspect(body)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`, content)
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient("sk-test", "gpt-4o-2024-08-06", 2048, zaptest.NewLogger(t),
		WithBaseURL("sk-test", baseURL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "gpt-4o", 100, nil)
	if err == nil {
		t.Fatal("Expected error for empty API key, got nil")
	}
}

func TestCompleteStructured(t *testing.T) {
	server := fakeCompletionServer(t, `{"explanation": "the user wants daily actives", "final_answer": 0}`,
		func(body completionBody) {
			if body.ResponseFormat.Type != "json_schema" {
				t.Errorf("Expected json_schema response format, got %q", body.ResponseFormat.Type)
			}
			if body.ResponseFormat.JSONSchema.Name != "metric_id" {
				t.Errorf("Expected schema name metric_id, got %q", body.ResponseFormat.JSONSchema.Name)
			}
			if len(body.Messages) != 3 {
				t.Fatalf("Expected system+assistant+user messages, got %d", len(body.Messages))
			}
			if body.Messages[1].Role != "assistant" {
				t.Errorf("Expected data as assistant message, got role %q", body.Messages[1].Role)
			}
		})
	defer server.Close()

	client := newTestClient(t, server.URL)

	var out struct {
		Explanation string  `json:"explanation"`
		FinalAnswer float64 `json:"final_answer"`
	}
	err := client.CompleteStructured(context.Background(), StructuredRequest{
		SystemPrompt: "pick a metric",
		Data:         `[{"id": 0, "name": "DAU"}]`,
		UserPrompt:   "daily active users",
		SchemaName:   "metric_id",
		Schema:       AnswerSchema(jsonschema.Number, "", ""),
	}, &out)
	if err != nil {
		t.Fatalf("CompleteStructured failed: %v", err)
	}

	if out.FinalAnswer != 0 {
		t.Errorf("Expected final_answer 0, got %v", out.FinalAnswer)
	}
	if out.Explanation == "" {
		t.Error("Expected non-empty explanation")
	}
}

func TestCompleteStructured_MalformedJSON(t *testing.T) {
	server := fakeCompletionServer(t, `not json at all`, nil)
	defer server.Close()

	client := newTestClient(t, server.URL)

	var out map[string]any
	err := client.CompleteStructured(context.Background(), StructuredRequest{
		SystemPrompt: "pick a metric",
		SchemaName:   "metric_id",
		Schema:       AnswerSchema(jsonschema.Number, "", ""),
	}, &out)
	if err == nil {
		t.Fatal("Expected decode error for malformed content, got nil")
	}
	if IsRetryable(err) {
		t.Error("Decode failures must not be classified as retryable")
	}
}

func TestCompleteStructured_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited", "type": "rate_limit_error"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var out map[string]any
	err := client.CompleteStructured(context.Background(), StructuredRequest{
		SystemPrompt: "pick a metric",
		SchemaName:   "metric_id",
		Schema:       AnswerSchema(jsonschema.Number, "", ""),
	}, &out)
	if err == nil {
		t.Fatal("Expected error for 429 response, got nil")
	}
	if !IsRetryable(err) {
		t.Errorf("Expected 429 to be retryable, got %v", err)
	}
}

func TestCompleteStructured_UnauthorizedIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var out map[string]any
	err := client.CompleteStructured(context.Background(), StructuredRequest{
		SystemPrompt: "pick a metric",
		SchemaName:   "metric_id",
		Schema:       AnswerSchema(jsonschema.Number, "", ""),
	}, &out)
	if err == nil {
		t.Fatal("Expected error for 401 response, got nil")
	}
	if IsRetryable(err) {
		t.Error("401 must not be retryable")
	}
}

func TestRetryableError(t *testing.T) {
	err := &RetryableError{StatusCode: 503, Message: "upstream down", RetryAfter: 2 * time.Second}
	if err.Error() == "" {
		t.Error("Expected non-empty error string")
	}

	wrapped := fmt.Errorf("call failed: %w", err)
	if !IsRetryable(wrapped) {
		t.Error("IsRetryable should see through wrapping")
	}

	var target *RetryableError
	if !errors.As(wrapped, &target) || target.StatusCode != 503 {
		t.Error("errors.As should recover the original error")
	}
}
