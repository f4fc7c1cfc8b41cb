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

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/insights-agent/internal/llm"
	"github.com/your-org/insights-agent/internal/posthog"
)

const summarizeInsightPrompt = "Your task is to give me a brief professional summary of a " +
	"analytics result from Posthog. I will give you the query name and the results json, " +
	"create a short summary that gives the gist of the metrics highlighting the important " +
	"information and data. Only present the data, do not give suggestions."

const summarizeDashboardPrompt = "Your task is to give me a brief professional summary of an " +
	"analytics dashboard from Posthog. I will give you a dashboard name, and a list of insights " +
	"from that dashboard. Create a short summary that highlights the important insights about " +
	"the entire dashboard. Only present the condensed insights, not suggestions. " +
	"Include key metrics and numbers."

// textAnswer is the schema-validated summary response
type textAnswer struct {
	Explanation string `json:"explanation"`
	FinalAnswer string `json:"final_answer"`
}

// summarizeInsight produces a short natural-language summary of one
// insight's result payload via a single LLM call.
func (s *Service) summarizeInsight(ctx context.Context, insight posthog.Insight) (string, error) {
	metricName := fmt.Sprintf("%s - %s", insight.Name, insight.Description)

	results := "null"
	if len(insight.Result) > 0 {
		results = string(insight.Result)
	}

	var answer textAnswer
	err := s.complete(ctx, llm.StructuredRequest{
		SystemPrompt: summarizeInsightPrompt,
		Data:         results,
		UserPrompt:   fmt.Sprintf("Metric: %s", metricName),
		SchemaName:   "analytics_summary",
		Schema: llm.AnswerSchema(jsonschema.String,
			"A detailed analysis of the user question and the analytics results",
			"The summary of the analytics"),
	}, &answer)
	if err != nil {
		return "", fmt.Errorf("failed to summarize insight %d: %w", insight.ID, err)
	}

	return answer.FinalAnswer, nil
}

// summarizeDashboard summarizes every member insight concurrently and
// combines the results. A dashboard with zero insights short-circuits to
// a fixed message without any LLM call. One failing summary fails the
// whole dashboard.
func (s *Service) summarizeDashboard(ctx context.Context, dashboard posthog.Dashboard, insights []posthog.Insight) (string, error) {
	if len(insights) == 0 {
		return fmt.Sprintf("Dashboard '%s' has no insights to summarize.", dashboard.Name), nil
	}

	summaries := make([]string, len(insights))
	g, gctx := errgroup.WithContext(ctx)
	for i, insight := range insights {
		i, insight := i, insight
		g.Go(func() error {
			summary, err := s.summarizeInsight(gctx, insight)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return s.combineSummaries(ctx, dashboard, insights, summaries)
}

// combineSummaries condenses the per-insight summaries into one dashboard
// summary. Insight summaries appear numbered in original list order.
func (s *Service) combineSummaries(ctx context.Context, dashboard posthog.Dashboard,
	insights []posthog.Insight, summaries []string) (string, error) {

	parts := []string{
		fmt.Sprintf("Dashboard: %s - %s", dashboard.Name, dashboard.Description),
		"Insights:",
	}
	for i, insight := range insights {
		parts = append(parts, fmt.Sprintf("%d. %s - %s - %s",
			i+1, insight.Name, insight.Description, summaries[i]))
	}

	var answer textAnswer
	err := s.complete(ctx, llm.StructuredRequest{
		SystemPrompt: summarizeDashboardPrompt,
		Data:         strings.Join(parts, "\n"),
		SchemaName:   "analytics_summary",
		Schema: llm.AnswerSchema(jsonschema.String,
			"A detailed analysis of the dashboard and the insights",
			"The summary of the dashboard"),
	}, &answer)
	if err != nil {
		return "", fmt.Errorf("failed to combine summaries for dashboard %d: %w", dashboard.ID, err)
	}

	return answer.FinalAnswer, nil
}
