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

package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/your-org/insights-agent/internal/agent"
	"github.com/your-org/insights-agent/internal/pendingaudio"
	"github.com/your-org/insights-agent/internal/recall"
)

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	summary string
	err     error
}

func (f *fakeSummarizer) SummarizeDashboard(_ context.Context, userQuery string) (agent.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return agent.QueryResult{}, f.err
	}
	return agent.QueryResult{Summary: f.summary}, nil
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return "", f.err
	}
	return "YXVkaW8=", nil
}

type fakeDeliverer struct {
	mu          sync.Mutex
	ops         []string
	audioResult recall.DeliveryResult
}

func (f *fakeDeliverer) SendAudio(_ context.Context, botID, audioB64 string) recall.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "audio:"+botID)
	return f.audioResult
}

func (f *fakeDeliverer) StartScreenshare(_ context.Context, botID, imageB64 string) recall.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "share-start:"+botID)
	return recall.DeliveryResult{Delivered: true}
}

func (f *fakeDeliverer) StopScreenshare(_ context.Context, botID string) recall.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "share-stop:"+botID)
	return recall.DeliveryResult{Delivered: true}
}

func newTestFlow(t *testing.T, summarizer *fakeSummarizer, synth *fakeSynthesizer, deliverer *fakeDeliverer, imagePath string) (*Flow, *pendingaudio.Store) {
	t.Helper()
	store := pendingaudio.NewStore(time.Minute, zaptest.NewLogger(t))
	flow := NewFlow(summarizer, synth, deliverer, store,
		"What are my top insights from yesterday?", imagePath, zaptest.NewLogger(t))
	return flow, store
}

func TestProcessRecordingStartedStoresPendingAudio(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "DAU is up 12%."}
	synth := &fakeSynthesizer{}
	deliverer := &fakeDeliverer{audioResult: recall.DeliveryResult{Delivered: true}}
	flow, store := newTestFlow(t, summarizer, synth, deliverer, "")

	if err := flow.ProcessRecordingStarted(context.Background(), "bot-1"); err != nil {
		t.Fatalf("ProcessRecordingStarted: %v", err)
	}

	audio, ok := store.Take("bot-1")
	if !ok || audio != "YXVkaW8=" {
		t.Errorf("pending audio = %q, ok = %v", audio, ok)
	}
	if len(deliverer.ops) != 0 {
		t.Errorf("pre-generation must not deliver, ops = %v", deliverer.ops)
	}
	if len(synth.texts) != 1 || !strings.HasPrefix(synth.texts[0], "Here are your top insights from yesterday: ") {
		t.Errorf("spoken text = %v", synth.texts)
	}
}

func TestTriggerConsumesPendingAudio(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "unused"}
	synth := &fakeSynthesizer{}
	deliverer := &fakeDeliverer{audioResult: recall.DeliveryResult{Delivered: true}}
	flow, store := newTestFlow(t, summarizer, synth, deliverer, "")

	store.Put("bot-1", "cHJlZ2Vu")

	if err := flow.ProcessTranscriptTrigger(context.Background(), "bot-1"); err != nil {
		t.Fatalf("ProcessTranscriptTrigger: %v", err)
	}

	if summarizer.calls != 0 {
		t.Errorf("summarizer calls = %d, want 0 with pending audio", summarizer.calls)
	}
	if len(deliverer.ops) != 1 || deliverer.ops[0] != "audio:bot-1" {
		t.Errorf("ops = %v", deliverer.ops)
	}
	if _, ok := store.Take("bot-1"); ok {
		t.Error("pending audio should be consumed")
	}
}

func TestTriggerGeneratesFreshWhenNoPending(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "WAU is flat."}
	synth := &fakeSynthesizer{}
	deliverer := &fakeDeliverer{audioResult: recall.DeliveryResult{Delivered: true}}
	flow, _ := newTestFlow(t, summarizer, synth, deliverer, "")

	if err := flow.ProcessTranscriptTrigger(context.Background(), "bot-2"); err != nil {
		t.Fatalf("ProcessTranscriptTrigger: %v", err)
	}

	if summarizer.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", summarizer.calls)
	}
	if len(deliverer.ops) != 1 || deliverer.ops[0] != "audio:bot-2" {
		t.Errorf("ops = %v", deliverer.ops)
	}
}

func TestTriggerDeliveryFailureNotPropagated(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "summary"}
	synth := &fakeSynthesizer{}
	deliverer := &fakeDeliverer{audioResult: recall.DeliveryResult{
		StatusCode: 502, Reason: "bad gateway", Retryable: true,
	}}
	flow, store := newTestFlow(t, summarizer, synth, deliverer, "")

	store.Put("bot-1", "cHJlZ2Vu")

	if err := flow.ProcessTranscriptTrigger(context.Background(), "bot-1"); err != nil {
		t.Errorf("delivery failure must not propagate: %v", err)
	}
}

func TestTriggerSummarizerFailurePropagates(t *testing.T) {
	summarizer := &fakeSummarizer{err: errors.New("upstream down")}
	synth := &fakeSynthesizer{}
	deliverer := &fakeDeliverer{}
	flow, _ := newTestFlow(t, summarizer, synth, deliverer, "")

	if err := flow.ProcessTranscriptTrigger(context.Background(), "bot-1"); err == nil {
		t.Error("expected generation failure to propagate")
	}
	if len(deliverer.ops) != 0 {
		t.Errorf("no delivery should happen on generation failure, ops = %v", deliverer.ops)
	}
}

func TestScreenshareBracketsAudio(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "dashboard.jpg")
	if err := os.WriteFile(imagePath, []byte("jpegbytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	summarizer := &fakeSummarizer{summary: "summary"}
	synth := &fakeSynthesizer{}
	deliverer := &fakeDeliverer{audioResult: recall.DeliveryResult{Delivered: true}}
	flow, store := newTestFlow(t, summarizer, synth, deliverer, imagePath)

	store.Put("bot-1", "cHJlZ2Vu")

	if err := flow.ProcessTranscriptTrigger(context.Background(), "bot-1"); err != nil {
		t.Fatalf("ProcessTranscriptTrigger: %v", err)
	}

	want := []string{"share-start:bot-1", "audio:bot-1", "share-stop:bot-1"}
	if len(deliverer.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", deliverer.ops, want)
	}
	for i := range want {
		if deliverer.ops[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, deliverer.ops[i], want[i])
		}
	}
}

func TestMissingImageSkipsScreenshare(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "summary"}
	synth := &fakeSynthesizer{}
	deliverer := &fakeDeliverer{audioResult: recall.DeliveryResult{Delivered: true}}
	flow, store := newTestFlow(t, summarizer, synth, deliverer, "/nonexistent/image.jpg")

	store.Put("bot-1", "cHJlZ2Vu")

	if err := flow.ProcessTranscriptTrigger(context.Background(), "bot-1"); err != nil {
		t.Fatalf("ProcessTranscriptTrigger: %v", err)
	}
	if len(deliverer.ops) != 1 || deliverer.ops[0] != "audio:bot-1" {
		t.Errorf("ops = %v, want audio only", deliverer.ops)
	}
}
