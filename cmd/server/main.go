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

// Package main provides the insights agent HTTP service. It answers
// analytics questions over the query endpoints and reacts to meeting-bot
// webhooks by speaking dashboard summaries into live calls.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/insights-agent/internal/agent"
	"github.com/your-org/insights-agent/internal/bot"
	"github.com/your-org/insights-agent/internal/config"
	"github.com/your-org/insights-agent/internal/health"
	"github.com/your-org/insights-agent/internal/llm"
	"github.com/your-org/insights-agent/internal/pendingaudio"
	"github.com/your-org/insights-agent/internal/posthog"
	"github.com/your-org/insights-agent/internal/recall"
	"github.com/your-org/insights-agent/internal/speech"
	"github.com/your-org/insights-agent/internal/transcript"
)

const serviceVersion = "1.0.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Insights agent HTTP service",
		Long: "Answers analytics questions by selecting and summarizing provider " +
			"insights with an LLM, and delivers spoken summaries to meeting bots.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "./configs/config.yaml", "Path to configuration file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	provider, err := posthog.NewClient(cfg.PostHog.Host, cfg.PostHog.ProjectID, cfg.PostHog.PersonalAPIKey, logger)
	if err != nil {
		return fmt.Errorf("failed to create analytics client: %w", err)
	}

	completer, err := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	agentService := agent.NewService(provider, completer, logger)

	synthesizer, err := speech.NewSynthesizer(
		cfg.ElevenLabs.APIKey, cfg.ElevenLabs.VoiceID,
		cfg.ElevenLabs.ModelID, cfg.ElevenLabs.OutputFormat, logger)
	if err != nil {
		return fmt.Errorf("failed to create speech synthesizer: %w", err)
	}

	deliverer, err := recall.NewClient(cfg.Recall.Host, cfg.Recall.APIToken, logger)
	if err != nil {
		return fmt.Errorf("failed to create bot delivery client: %w", err)
	}

	validator, err := recall.NewWebhookValidator(cfg.Recall.WebhookSecret, logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook validator: %w", err)
	}

	pending := pendingaudio.NewStore(
		time.Duration(cfg.Agent.PendingAudioTTLMin)*time.Minute, logger)
	pending.StartCleanup(time.Minute)
	defer pending.Stop()

	dedup, err := transcript.NewDedupStore(cfg.Transcript.DedupDBPath)
	if err != nil {
		return fmt.Errorf("failed to open dedup store: %w", err)
	}
	defer dedup.Close()

	flow := bot.NewFlow(agentService, synthesizer, deliverer, pending,
		cfg.Agent.StandingQuery, cfg.Agent.ScreenshareImagePath, logger)

	healthManager := health.NewManager("insights-agent", serviceVersion)
	healthManager.AddChecker("posthog", health.HTTPChecker(cfg.PostHog.Host, nil))
	healthManager.AddChecker("dedup_db", func(_ context.Context) error {
		return dedup.Ping()
	})

	srv := newServer(agentService, flow, validator, dedup, healthManager,
		cfg.Transcript.TriggerPhrase, logger)
	router := srv.router()

	logger.Info("Starting insights agent service",
		zap.String("port", cfg.Server.Port),
		zap.String("posthog_host", cfg.PostHog.Host),
		zap.String("model", cfg.OpenAI.Model),
		zap.Bool("webhook_validation", validator.IsValidationEnabled()))

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
