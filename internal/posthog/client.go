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

// Package posthog provides a client for the PostHog project REST API.
// It fetches dashboards and insights (following cursor pagination) and
// resolves public sharing URLs for embedding.
package posthog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the timeout applied to PostHog API requests
const DefaultTimeout = 30 * time.Second

// Client wraps the PostHog project REST API
type Client struct {
	host       string
	projectID  string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Insight is a single named analytics query/result. Immutable once fetched.
type Insight struct {
	ID          int             `json:"id"`
	ShortID     string          `json:"short_id"`
	Name        string          `json:"name"`
	DerivedName string          `json:"derived_name"`
	Filters     json.RawMessage `json:"filters"`
	Query       json.RawMessage `json:"query"`
	Dashboards  []int           `json:"dashboards"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Dashboard is a named collection of insights
type Dashboard struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// APIError represents a non-2xx response from the PostHog API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("PostHog API returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new PostHog API client. The personal API key is
// required; construction fails fast when it is absent.
func NewClient(host, projectID, apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("PostHog personal API key is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("PostHog project id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		host:       host,
		projectID:  projectID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}, nil
}

// ListDashboards fetches all dashboards for the project, following
// pagination until the cursor is exhausted.
func (c *Client) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	baseURL := fmt.Sprintf("%s/api/projects/%s/dashboards", c.host, c.projectID)

	raw, err := c.getAllPaginatedResults(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}

	dashboards := make([]Dashboard, 0, len(raw))
	for _, record := range raw {
		var d Dashboard
		if err := json.Unmarshal(record, &d); err != nil {
			return nil, fmt.Errorf("failed to decode dashboard record: %w", err)
		}
		dashboards = append(dashboards, d)
	}

	c.logger.Debug("Fetched dashboards from PostHog",
		zap.Int("count", len(dashboards)))

	return dashboards, nil
}

// ListInsights fetches all insights for the project, following pagination
// until the cursor is exhausted.
func (c *Client) ListInsights(ctx context.Context) ([]Insight, error) {
	baseURL := fmt.Sprintf("%s/api/projects/%s/insights", c.host, c.projectID)

	raw, err := c.getAllPaginatedResults(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}

	insights := make([]Insight, 0, len(raw))
	for _, record := range raw {
		var in Insight
		if err := json.Unmarshal(record, &in); err != nil {
			return nil, fmt.Errorf("failed to decode insight record: %w", err)
		}
		insights = append(insights, in)
	}

	c.logger.Debug("Fetched insights from PostHog",
		zap.Int("count", len(insights)))

	return insights, nil
}

// paginatedResponse is the envelope PostHog list endpoints return
type paginatedResponse struct {
	Results []json.RawMessage `json:"results"`
	Next    string            `json:"next"`
}

// getAllPaginatedResults follows the `next` cursor until exhausted and
// accumulates every result record.
func (c *Client) getAllPaginatedResults(ctx context.Context, baseURL string) ([]json.RawMessage, error) {
	var allResults []json.RawMessage
	nextURL := baseURL

	for nextURL != "" {
		body, err := c.get(ctx, nextURL)
		if err != nil {
			return nil, err
		}

		var page paginatedResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode paginated response: %w", err)
		}

		allResults = append(allResults, page.Results...)
		nextURL = page.Next
	}

	return allResults, nil
}

// sharingResponse is the payload of the sharing configuration endpoint
type sharingResponse struct {
	Enabled     bool   `json:"enabled"`
	AccessToken string `json:"access_token"`
}

// InsightEmbedURL resolves the public embed URL for an insight. Returns an
// empty string when public sharing is disabled.
func (c *Client) InsightEmbedURL(ctx context.Context, insightID int) (string, error) {
	url := fmt.Sprintf("%s/api/projects/%s/insights/%d/sharing/", c.host, c.projectID, insightID)
	return c.embedURL(ctx, url)
}

// DashboardEmbedURL resolves the public embed URL for a dashboard. Returns
// an empty string when public sharing is disabled.
func (c *Client) DashboardEmbedURL(ctx context.Context, dashboardID int) (string, error) {
	url := fmt.Sprintf("%s/api/projects/%s/dashboards/%d/sharing/", c.host, c.projectID, dashboardID)
	return c.embedURL(ctx, url)
}

func (c *Client) embedURL(ctx context.Context, url string) (string, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}

	var sharing sharingResponse
	if err := json.Unmarshal(body, &sharing); err != nil {
		return "", fmt.Errorf("failed to decode sharing response: %w", err)
	}

	if !sharing.Enabled || sharing.AccessToken == "" {
		return "", nil
	}

	return c.sharingURL(sharing.AccessToken), nil
}

// sharingURL builds the public embed URL from a sharing access token
func (c *Client) sharingURL(token string) string {
	return fmt.Sprintf("%s/embedded/%s", c.host, token)
}

// get performs an authenticated GET request with structured error handling
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("PostHog API request failed",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
