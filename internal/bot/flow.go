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

// Package bot orchestrates the in-call agent: it turns the standing
// analytics query into spoken audio and delivers it through the meeting
// bot, with an optional screenshare image alongside.
package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/your-org/insights-agent/internal/agent"
	"github.com/your-org/insights-agent/internal/recall"
)

// spokenPrefix leads the summary when read aloud in the call
const spokenPrefix = "Here are your top insights from yesterday: "

// Summarizer produces a dashboard summary for a user query
type Summarizer interface {
	SummarizeDashboard(ctx context.Context, userQuery string) (agent.QueryResult, error)
}

// Synthesizer converts text to base64-encoded mp3 audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Deliverer sends audio and screenshare output to a bot in a call
type Deliverer interface {
	SendAudio(ctx context.Context, botID, audioB64 string) recall.DeliveryResult
	StartScreenshare(ctx context.Context, botID, imageB64 string) recall.DeliveryResult
	StopScreenshare(ctx context.Context, botID string) recall.DeliveryResult
}

// PendingStore holds pre-generated audio keyed by bot ID
type PendingStore interface {
	Put(botID, audioB64 string)
	Take(botID string) (string, bool)
}

// Flow wires the analytics agent, speech synthesis, and bot delivery
// into the two webhook-driven entry points.
type Flow struct {
	summarizer    Summarizer
	synthesizer   Synthesizer
	deliverer     Deliverer
	pending       PendingStore
	logger        *zap.Logger
	standingQuery string
	imagePath     string
}

// NewFlow creates the agent flow. The standing query is what the bot
// answers when triggered; imagePath optionally names a jpeg shown as a
// screenshare during playback.
func NewFlow(summarizer Summarizer, synthesizer Synthesizer, deliverer Deliverer, pending PendingStore, standingQuery, imagePath string, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		summarizer:    summarizer,
		synthesizer:   synthesizer,
		deliverer:     deliverer,
		pending:       pending,
		logger:        logger,
		standingQuery: standingQuery,
		imagePath:     imagePath,
	}
}

// ProcessRecordingStarted pre-generates the spoken answer for a bot as
// soon as it starts recording, so a later trigger phrase can be answered
// without waiting on the LLM and TTS round trips.
func (f *Flow) ProcessRecordingStarted(ctx context.Context, botID string) error {
	f.logger.Info("Pre-generating audio response", zap.String("bot_id", botID))

	audioB64, err := f.generateAudio(ctx)
	if err != nil {
		return err
	}

	f.pending.Put(botID, audioB64)
	f.logger.Info("Pending audio ready", zap.String("bot_id", botID))
	return nil
}

// ProcessTranscriptTrigger answers a trigger phrase heard in the call.
// Pre-generated audio is used when available; otherwise the answer is
// generated on the spot. Delivery failures are logged but never
// propagated since the webhook has already been acknowledged.
func (f *Flow) ProcessTranscriptTrigger(ctx context.Context, botID string) error {
	f.logger.Info("Processing trigger phrase", zap.String("bot_id", botID))

	audioB64, ok := f.pending.Take(botID)
	if !ok {
		f.logger.Info("No pending audio, generating fresh response",
			zap.String("bot_id", botID))
		var err error
		audioB64, err = f.generateAudio(ctx)
		if err != nil {
			return err
		}
	}

	f.deliver(ctx, botID, audioB64)
	return nil
}

// generateAudio runs the standing query through the agent and converts
// the summary to speech.
func (f *Flow) generateAudio(ctx context.Context) (string, error) {
	result, err := f.summarizer.SummarizeDashboard(ctx, f.standingQuery)
	if err != nil {
		return "", fmt.Errorf("failed to summarize dashboard: %w", err)
	}

	audioB64, err := f.synthesizer.Synthesize(ctx, spokenPrefix+result.Summary)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize speech: %w", err)
	}

	return audioB64, nil
}

// deliver plays the audio in the call, bracketed by a screenshare when
// an image is configured.
func (f *Flow) deliver(ctx context.Context, botID, audioB64 string) {
	imageB64 := f.loadImage()
	if imageB64 != "" {
		if result := f.deliverer.StartScreenshare(ctx, botID, imageB64); !result.Delivered {
			f.logger.Warn("Failed to start screenshare",
				zap.String("bot_id", botID),
				zap.String("reason", result.Reason),
				zap.Bool("retryable", result.Retryable))
		}
	}

	if result := f.deliverer.SendAudio(ctx, botID, audioB64); !result.Delivered {
		f.logger.Error("Failed to deliver audio",
			zap.String("bot_id", botID),
			zap.Int("status", result.StatusCode),
			zap.String("reason", result.Reason),
			zap.Bool("retryable", result.Retryable))
	} else {
		f.logger.Info("Delivered audio response", zap.String("bot_id", botID))
	}

	if imageB64 != "" {
		if result := f.deliverer.StopScreenshare(ctx, botID); !result.Delivered {
			f.logger.Warn("Failed to stop screenshare",
				zap.String("bot_id", botID),
				zap.String("reason", result.Reason))
		}
	}
}

// loadImage reads and encodes the configured screenshare image. A
// missing or unreadable image disables the screenshare for this
// delivery only.
func (f *Flow) loadImage() string {
	if f.imagePath == "" {
		return ""
	}

	data, err := os.ReadFile(f.imagePath)
	if err != nil {
		f.logger.Warn("Failed to read screenshare image",
			zap.String("path", f.imagePath),
			zap.Error(err))
		return ""
	}

	return base64.StdEncoding.EncodeToString(data)
}
