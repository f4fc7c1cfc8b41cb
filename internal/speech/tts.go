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

// Package speech converts summary text to playable audio via the
// ElevenLabs text-to-speech API.
package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/haguro/elevenlabs-go"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one synthesis request
const DefaultTimeout = 60 * time.Second

// Synthesizer converts text to base64-encoded mp3 audio
type Synthesizer struct {
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string
	logger       *zap.Logger
	timeout      time.Duration
}

// NewSynthesizer creates a text-to-speech synthesizer. The API key is
// required; voice, model and output format fall back to service defaults
// when empty.
func NewSynthesizer(apiKey, voiceID, modelID, outputFormat string, logger *zap.Logger) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if voiceID == "" {
		voiceID = "pNInz6obpgDQGcFmaJgB"
	}
	if modelID == "" {
		modelID = "eleven_turbo_v2"
	}
	if outputFormat == "" {
		outputFormat = "mp3_22050_32"
	}

	s := &Synthesizer{
		apiKey:       apiKey,
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		logger:       logger,
		timeout:      DefaultTimeout,
	}
	return s, nil
}

// Synthesize converts text to mp3 audio and returns it base64-encoded,
// ready for delivery to a bot. Empty or whitespace-only text is rejected
// without an API call.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("cannot synthesize empty text")
	}

	client := elevenlabs.NewClient(ctx, s.apiKey, s.timeout)

	start := time.Now()

	audio, err := client.TextToSpeech(s.voiceID, elevenlabs.TextToSpeechRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: &elevenlabs.VoiceSettings{
			Stability:       0.0,
			SimilarityBoost: 1.0,
			Style:           0.0,
			SpeakerBoost:    true,
		},
	},
		elevenlabs.LatencyOptimizations(0),
		elevenlabs.OutputFormat(s.outputFormat),
	)
	if err != nil {
		return "", fmt.Errorf("text-to-speech request failed: %w", err)
	}

	s.logger.Info("Synthesized speech",
		zap.Int("text_length", len(text)),
		zap.Int("audio_bytes", len(audio)),
		zap.Duration("duration", time.Since(start)))

	return base64.StdEncoding.EncodeToString(audio), nil
}
