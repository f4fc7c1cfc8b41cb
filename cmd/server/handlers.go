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

package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/insights-agent/internal/agent"
	"github.com/your-org/insights-agent/internal/health"
	"github.com/your-org/insights-agent/internal/recall"
	"github.com/your-org/insights-agent/internal/transcript"
)

// flowTimeout bounds one webhook-triggered agent run (LLM fan-out, TTS
// and delivery included)
const flowTimeout = 120 * time.Second

// answerer answers analytics questions
type answerer interface {
	Ask(ctx context.Context, userQuery string) (agent.QueryResult, error)
	SummarizeDashboard(ctx context.Context, userQuery string) (agent.QueryResult, error)
}

// agentFlow reacts to bot lifecycle and trigger events
type agentFlow interface {
	ProcessRecordingStarted(ctx context.Context, botID string) error
	ProcessTranscriptTrigger(ctx context.Context, botID string) error
}

// dedupStore elects a single winner per transcript id
type dedupStore interface {
	MarkProcessed(transcriptID string) (bool, error)
}

type server struct {
	agent         answerer
	flow          agentFlow
	validator     *recall.WebhookValidator
	dedup         dedupStore
	health        *health.Manager
	triggerPhrase string
	logger        *zap.Logger
}

func newServer(agent answerer, flow agentFlow, validator *recall.WebhookValidator, dedup dedupStore, healthManager *health.Manager, triggerPhrase string, logger *zap.Logger) *server {
	return &server{
		agent:         agent,
		flow:          flow,
		validator:     validator,
		dedup:         dedup,
		health:        healthManager,
		triggerPhrase: triggerPhrase,
		logger:        logger,
	}
}

func (s *server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestID())
	router.Use(s.requestLogger())

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.POST("/query", s.handleQuery)
	router.POST("/dashboard_summary", s.handleDashboardSummary)
	router.POST("/recall/webhook", s.handleRecallWebhook)
	router.POST("/api/webhook/recall/transcript", s.handleTranscriptWebhook)

	return router
}

// requestID tags every request with a correlation id
func (s *server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

func (s *server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}

func (s *server) handleHealth(c *gin.Context) {
	result := s.health.Check(c.Request.Context())
	c.JSON(health.StatusCode(result.Status), result)
}

// QueryRequest is the body of the query endpoints
type QueryRequest struct {
	UserQuery string `json:"user_query" binding:"required"`
}

func (s *server) handleQuery(c *gin.Context) {
	s.answerWith(c, s.agent.Ask)
}

func (s *server) handleDashboardSummary(c *gin.Context) {
	s.answerWith(c, s.agent.SummarizeDashboard)
}

func (s *server) answerWith(c *gin.Context, answer func(context.Context, string) (agent.QueryResult, error)) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("Failed to parse query request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	s.logger.Info("Received query", zap.String("user_query", req.UserQuery))

	result, err := answer(c.Request.Context(), req.UserQuery)
	if err != nil {
		s.logger.Error("Failed to answer query", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process query"})
		return
	}

	var embedURL any
	if result.EmbedURL != "" {
		embedURL = result.EmbedURL
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"response":  result.Summary,
		"embed_url": embedURL,
	})
}

// handleRecallWebhook receives bot status events. Signature failures get
// a bodyless 400 and never reach event handling. The agent flow runs in
// the background so the platform's delivery timeout is never at risk.
func (s *server) handleRecallWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if result := s.validator.Validate(c.Request, body); !result.Valid {
		c.Status(http.StatusBadRequest)
		return
	}

	event, err := recall.ParseEvent(body)
	if err != nil {
		s.logger.Error("Failed to parse bot event", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	if !event.Recognized() {
		s.logger.Warn("Ignoring unrecognized bot event",
			zap.String("event", string(event.Type)))
		c.Status(http.StatusNoContent)
		return
	}

	s.logger.Info("Received bot event",
		zap.String("event", string(event.Type)),
		zap.String("bot_id", event.BotID),
		zap.String("description", event.Description()))

	if event.Type == recall.EventInCallRecording {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), flowTimeout)
			defer cancel()
			if err := s.flow.ProcessRecordingStarted(ctx, event.BotID); err != nil {
				s.logger.Error("Failed to pre-generate audio",
					zap.String("bot_id", event.BotID),
					zap.Error(err))
			}
		}()
	}

	c.Status(http.StatusNoContent)
}

// handleTranscriptWebhook receives real-time transcript fragments. A
// trigger phrase starts the audio-response flow exactly once per
// transcript id, across repeat deliveries and restarts.
func (s *server) handleTranscriptWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	fragment, err := transcript.Parse(body)
	if err != nil {
		s.logger.Error("Failed to parse transcript payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	if !fragment.ContainsTrigger(s.triggerPhrase) {
		c.Status(http.StatusNoContent)
		return
	}

	first, err := s.dedup.MarkProcessed(fragment.TranscriptID)
	if err != nil {
		s.logger.Error("Failed to record transcript id",
			zap.String("transcript_id", fragment.TranscriptID),
			zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	if !first {
		s.logger.Info("Skipping already-processed transcript",
			zap.String("transcript_id", fragment.TranscriptID))
		c.Status(http.StatusNoContent)
		return
	}

	s.logger.Info("Trigger phrase detected",
		zap.String("transcript_id", fragment.TranscriptID),
		zap.String("bot_id", fragment.BotID))

	ctx, cancel := context.WithTimeout(c.Request.Context(), flowTimeout)
	defer cancel()
	if err := s.flow.ProcessTranscriptTrigger(ctx, fragment.BotID); err != nil {
		s.logger.Error("Failed to process trigger",
			zap.String("bot_id", fragment.BotID),
			zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusNoContent)
}
