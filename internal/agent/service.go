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

// Package agent answers natural-language analytics questions. It selects
// the best-matching insight or dashboard for a user query via the LLM,
// summarizes the analytics results, and resolves a public embed URL.
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/your-org/insights-agent/internal/llm"
	"github.com/your-org/insights-agent/internal/posthog"
	"github.com/your-org/insights-agent/internal/resilience"
)

const (
	// NoMatchingInsightMessage is returned when no insight matches the query
	NoMatchingInsightMessage = "I couldn't find a relevant metric that matches your query. " +
		"Please try rephrasing your question or ask about a different metric."
	// NoMatchingDashboardMessage is returned when no dashboard matches the query
	NoMatchingDashboardMessage = "I couldn't find a relevant dashboard that matches your query. " +
		"Please try rephrasing your question or ask about a different dashboard."
)

// Completer issues schema-constrained LLM completions
type Completer interface {
	CompleteStructured(ctx context.Context, req llm.StructuredRequest, out any) error
}

// Provider fetches dashboards and insights from the analytics API
type Provider interface {
	ListDashboards(ctx context.Context) ([]posthog.Dashboard, error)
	ListInsights(ctx context.Context) ([]posthog.Insight, error)
	InsightEmbedURL(ctx context.Context, insightID int) (string, error)
	DashboardEmbedURL(ctx context.Context, dashboardID int) (string, error)
}

// QueryResult is the unit returned to the caller: a summary plus an
// optional embeddable URL (empty when sharing is disabled or no match).
type QueryResult struct {
	Summary  string
	EmbedURL string
}

// Service orchestrates selection, summarization and embed URL resolution
type Service struct {
	provider  Provider
	completer Completer
	logger    *zap.Logger
	retryCfg  resilience.BackoffConfig
}

// NewService creates a new agent service
func NewService(provider Provider, completer Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider:  provider,
		completer: completer,
		logger:    logger,
		retryCfg:  resilience.DefaultBackoffConfig(),
	}
}

// Ask answers a user query by selecting the best-matching insight and
// summarizing its results.
func (s *Service) Ask(ctx context.Context, userQuery string) (QueryResult, error) {
	insights, err := s.provider.ListInsights(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	insight, err := s.selectInsight(ctx, insights, userQuery)
	if err != nil {
		return QueryResult{}, err
	}
	if insight == nil {
		return QueryResult{Summary: NoMatchingInsightMessage}, nil
	}

	summary, err := s.summarizeInsight(ctx, *insight)
	if err != nil {
		return QueryResult{}, err
	}

	embedURL, err := s.provider.InsightEmbedURL(ctx, insight.ID)
	if err != nil {
		// The summary is still useful without a share link
		s.logger.Warn("Failed to resolve insight embed URL",
			zap.Int("insight_id", insight.ID), zap.Error(err))
		embedURL = ""
	}

	return QueryResult{Summary: summary, EmbedURL: embedURL}, nil
}

// SummarizeDashboard answers a user query by selecting the best-matching
// dashboard and summarizing all of its insights.
func (s *Service) SummarizeDashboard(ctx context.Context, userQuery string) (QueryResult, error) {
	dashboards, err := s.provider.ListDashboards(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	dashboard, err := s.selectDashboard(ctx, dashboards, userQuery)
	if err != nil {
		return QueryResult{}, err
	}
	if dashboard == nil {
		return QueryResult{Summary: NoMatchingDashboardMessage}, nil
	}

	insights, err := s.dashboardInsights(ctx, dashboard.ID)
	if err != nil {
		return QueryResult{}, err
	}

	summary, err := s.summarizeDashboard(ctx, *dashboard, insights)
	if err != nil {
		return QueryResult{}, err
	}

	embedURL, err := s.provider.DashboardEmbedURL(ctx, dashboard.ID)
	if err != nil {
		s.logger.Warn("Failed to resolve dashboard embed URL",
			zap.Int("dashboard_id", dashboard.ID), zap.Error(err))
		embedURL = ""
	}

	return QueryResult{Summary: summary, EmbedURL: embedURL}, nil
}

// dashboardInsights returns the insights that are members of the dashboard,
// in provider order.
func (s *Service) dashboardInsights(ctx context.Context, dashboardID int) ([]posthog.Insight, error) {
	insights, err := s.provider.ListInsights(ctx)
	if err != nil {
		return nil, err
	}

	var members []posthog.Insight
	for _, insight := range insights {
		for _, id := range insight.Dashboards {
			if id == dashboardID {
				members = append(members, insight)
				break
			}
		}
	}
	return members, nil
}

// complete wraps an LLM call with the retry policy. Only transient
// upstream failures are retried; schema errors fail fast.
func (s *Service) complete(ctx context.Context, req llm.StructuredRequest, out any) error {
	return resilience.WithRetry(ctx, s.logger, s.retryCfg, func(ctx context.Context) error {
		return s.completer.CompleteStructured(ctx, req, out)
	})
}
