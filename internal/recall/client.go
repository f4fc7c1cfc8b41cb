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

// Package recall provides the meeting-bot platform gateway: audio and
// screenshare delivery to a bot in a live call, plus webhook event
// parsing and signature verification.
package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the timeout applied to delivery requests
const DefaultTimeout = 30 * time.Second

// DeliveryResult reports the outcome of one fire-and-forget delivery
// call. Failures carry the upstream status and whether a retry could
// plausibly succeed; they are never surfaced as errors to the caller.
type DeliveryResult struct {
	Delivered  bool
	StatusCode int
	Reason     string
	Retryable  bool
}

// Client wraps the bot platform's output API
type Client struct {
	host       string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new delivery client. The API token is required.
func NewClient(host, apiToken string, logger *zap.Logger) (*Client, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("Recall API token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		host:       host,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}, nil
}

// SendAudio sends base64-encoded mp3 audio to a bot for playback in the call
func (c *Client) SendAudio(ctx context.Context, botID, audioB64 string) DeliveryResult {
	url := fmt.Sprintf("%s/api/v1/bot/%s/output_audio/", c.host, botID)
	payload := map[string]string{
		"kind":     "mp3",
		"b64_data": audioB64,
	}
	return c.post(ctx, "send audio", url, payload)
}

// StartScreenshare starts a screenshare showing a base64-encoded jpeg image
func (c *Client) StartScreenshare(ctx context.Context, botID, imageB64 string) DeliveryResult {
	url := fmt.Sprintf("%s/api/v1/bot/%s/output_screenshare/", c.host, botID)
	payload := map[string]string{
		"kind":     "jpeg",
		"b64_data": imageB64,
	}
	return c.post(ctx, "start screenshare", url, payload)
}

// StopScreenshare stops an active screenshare
func (c *Client) StopScreenshare(ctx context.Context, botID string) DeliveryResult {
	url := fmt.Sprintf("%s/api/v1/bot/%s/output_screenshare/stop/", c.host, botID)
	return c.post(ctx, "stop screenshare", url, nil)
}

// post performs one delivery call. Non-2xx responses and transport errors
// are logged and reported through the result, never raised.
func (c *Client) post(ctx context.Context, operation, url string, payload any) DeliveryResult {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return DeliveryResult{Reason: fmt.Sprintf("failed to encode payload: %v", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return DeliveryResult{Reason: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Delivery request failed",
			zap.String("operation", operation),
			zap.Error(err))
		return DeliveryResult{Reason: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error("Delivery request returned error status",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return DeliveryResult{
			StatusCode: resp.StatusCode,
			Reason:     string(respBody),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	c.logger.Info("Delivery request succeeded",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode))

	return DeliveryResult{Delivered: true, StatusCode: resp.StatusCode}
}
