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
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/your-org/insights-agent/internal/llm"
	"github.com/your-org/insights-agent/internal/posthog"
)

const selectInsightPrompt = "Your task is to help me select the right metric. " +
	"I will give you a user question and a list of available metrics. \n" +
	"Select the most appropriate metric based on what the user wants.\n\n" +
	"First think through what the user is asking for and what the options are. \n\n" +
	"Then give me the final answer as the index of the insight that best matches. " +
	"If no matching index is found, use -1"

const selectDashboardPrompt = "Your task is to help select the most relevant dashboard " +
	"based on a user query. Consider the dashboard names and descriptions to find the best match. \n" +
	" First think through what the user is asking for and what the options are. \n" +
	" Then give me the final answer as the index of the dashboard that best matches. " +
	"If no matching index is found, use -1"

// selectionOption is one entry in the candidate list sent to the LLM
type selectionOption struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// numericAnswer is the schema-validated selection response
type numericAnswer struct {
	Explanation string  `json:"explanation"`
	FinalAnswer float64 `json:"final_answer"`
}

// selectInsight asks the LLM to pick the insight that best matches the
// user query. Returns nil when nothing matches. Insights with both name
// and description empty are excluded from consideration.
func (s *Service) selectInsight(ctx context.Context, insights []posthog.Insight, userQuery string) (*posthog.Insight, error) {
	var options []selectionOption
	var filtered []posthog.Insight
	for _, insight := range insights {
		if insight.Name == "" && insight.Description == "" {
			s.logger.Warn("Skipping insight with empty name and description",
				zap.Int("insight_id", insight.ID))
			continue
		}
		options = append(options, selectionOption{
			ID:   len(filtered),
			Name: fmt.Sprintf("%s - %s", insight.Name, insight.Description),
		})
		filtered = append(filtered, insight)
	}

	idx, err := s.selectIndex(ctx, "metric_id", selectInsightPrompt, options, userQuery,
		"A detailed explanation of the user's question and the metric that best answers it.",
		"The unique identifier for the metric.")
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	return &filtered[idx], nil
}

// selectDashboard asks the LLM to pick the dashboard that best matches
// the user query. Returns nil when nothing matches.
func (s *Service) selectDashboard(ctx context.Context, dashboards []posthog.Dashboard, userQuery string) (*posthog.Dashboard, error) {
	var options []selectionOption
	var filtered []posthog.Dashboard
	for _, dashboard := range dashboards {
		if dashboard.Name == "" && dashboard.Description == "" {
			s.logger.Warn("Skipping dashboard with empty name and description",
				zap.Int("dashboard_id", dashboard.ID))
			continue
		}
		description := dashboard.Description
		if description == "" {
			description = "No description"
		}
		options = append(options, selectionOption{
			ID:          len(filtered),
			Name:        dashboard.Name,
			Description: description,
		})
		filtered = append(filtered, dashboard)
	}

	idx, err := s.selectIndex(ctx, "dashboard_id", selectDashboardPrompt, options, userQuery,
		"A detailed explanation of why this dashboard was selected",
		"The index of the selected dashboard")
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	return &filtered[idx], nil
}

// selectIndex runs one selection completion and resolves the answer to an
// index into the candidate list, or -1 for no match. An empty candidate
// list short-circuits to no match without an LLM call. An out-of-range
// answer is treated as no match, not an error.
func (s *Service) selectIndex(ctx context.Context, schemaName, systemPrompt string,
	options []selectionOption, userQuery, explanationDesc, answerDesc string) (int, error) {

	if len(options) == 0 {
		s.logger.Info("No candidates to select from", zap.String("schema", schemaName))
		return -1, nil
	}

	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return -1, fmt.Errorf("failed to encode candidate options: %w", err)
	}

	var answer numericAnswer
	err = s.complete(ctx, llm.StructuredRequest{
		SystemPrompt: systemPrompt,
		Data:         string(optionsJSON),
		UserPrompt:   userQuery,
		SchemaName:   schemaName,
		Schema:       llm.AnswerSchema(jsonschema.Number, explanationDesc, answerDesc),
	}, &answer)
	if err != nil {
		return -1, err
	}

	idx := int(answer.FinalAnswer)
	if idx < 0 || idx >= len(options) {
		if idx != -1 {
			s.logger.Warn("Selection answer out of range, treating as no match",
				zap.Int("answer", idx),
				zap.Int("candidates", len(options)))
		}
		return -1, nil
	}

	s.logger.Info("Candidate selected",
		zap.String("schema", schemaName),
		zap.Int("index", idx),
		zap.String("name", options[idx].Name))

	return idx, nil
}
