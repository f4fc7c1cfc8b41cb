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

// Package llm wraps the go-openai client for chat completions with
// JSON-schema constrained responses. Every call returns a single
// schema-validated object; decoding failures are hard errors and are
// never classified as retryable.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

const (
	// DefaultModel is the chat model used when none is configured
	DefaultModel = "gpt-4o-2024-08-06"
	// DefaultMaxTokens bounds the completion length
	DefaultMaxTokens = 2048
	// completionTemperature keeps structured answers stable
	completionTemperature = 0.3
)

// RetryableError represents an upstream failure that is safe to retry,
// such as a rate limit or a transient server error.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is a transient upstream failure
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Client wraps the go-openai client with structured completion support
type Client struct {
	client    *openai.Client
	logger    *zap.Logger
	model     string
	maxTokens int
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at an alternate API endpoint
func WithBaseURL(apiKey, baseURL string) Option {
	return func(c *Client) {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		c.client = openai.NewClientWithConfig(cfg)
	}
}

// NewClient creates a new LLM client
func NewClient(apiKey, model string, maxTokens int, logger *zap.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		client:    openai.NewClient(apiKey),
		logger:    logger,
		model:     model,
		maxTokens: maxTokens,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// StructuredRequest describes one schema-constrained chat completion. The
// message layout mirrors the prompting convention used throughout the
// service: a system instruction, the data under discussion as an assistant
// message, and the user's question last.
type StructuredRequest struct {
	SystemPrompt string
	Data         string
	UserPrompt   string
	SchemaName   string
	Schema       jsonschema.Definition
}

// CompleteStructured issues a single chat completion and decodes the
// schema-validated JSON answer into out.
func (c *Client) CompleteStructured(ctx context.Context, req StructuredRequest, out any) error {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
	}
	if req.Data != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: req.Data,
		})
	}
	if req.UserPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		})
	}

	c.logger.Debug("Creating structured chat completion",
		zap.String("model", c.model),
		zap.String("schema", req.SchemaName),
		zap.Int("message_count", len(messages)))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: completionTemperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: &req.Schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return c.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices returned from completion")
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to decode structured response: %w", err)
	}

	c.logger.Debug("Structured completion successful",
		zap.String("schema", req.SchemaName),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return nil
}

// classifyError maps API errors onto the retryable/fatal split. Rate limits
// and server errors are transient; everything else fails fast.
func (c *Client) classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return &RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
			}
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
			}
		case http.StatusUnauthorized:
			return fmt.Errorf("invalid API key or unauthorized access: %w", err)
		default:
			return fmt.Errorf("OpenAI API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
	}

	return fmt.Errorf("OpenAI client error: %w", err)
}

// AnswerSchema is the response shape shared by all structured calls: a
// free-form explanation plus a final answer.
func AnswerSchema(answerType jsonschema.DataType, explanationDesc, answerDesc string) jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"explanation": {
				Type:        jsonschema.String,
				Description: explanationDesc,
			},
			"final_answer": {
				Type:        answerType,
				Description: answerDesc,
			},
		},
		Required:             []string{"explanation", "final_answer"},
		AdditionalProperties: false,
	}
}
