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

package recall

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// SignatureIDHeader carries the unique message id
	SignatureIDHeader = "Svix-Id"
	// SignatureTimestampHeader carries the unix timestamp of the attempt
	SignatureTimestampHeader = "Svix-Timestamp"
	// SignatureHeader carries space-separated versioned signatures
	SignatureHeader = "Svix-Signature"
	// MaxWebhookAge is the maximum age allowed for webhook requests
	MaxWebhookAge = 5 * time.Minute
	// secretPrefix precedes the base64 portion of the signing secret
	secretPrefix = "whsec_"
)

// WebhookValidator verifies the platform's signed webhook deliveries.
// The scheme is svix-style: HMAC-SHA256 over "id.timestamp.payload" with
// a shared base64 secret, base64-encoded signature.
type WebhookValidator struct {
	secret  []byte
	logger  *zap.Logger
	enabled bool
	now     func() time.Time
}

// ValidationResult represents the result of webhook validation
type ValidationResult struct {
	Valid        bool
	ErrorMessage string
}

// NewWebhookValidator creates a new webhook validator. An empty secret
// disables validation; that should only happen in development.
func NewWebhookValidator(secret string, logger *zap.Logger) (*WebhookValidator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if secret == "" {
		logger.Warn("Webhook validation disabled - no signing secret provided. " +
			"This should only be used in development environments.")
		return &WebhookValidator{logger: logger, now: time.Now}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("webhook secret is not valid base64: %w", err)
	}

	return &WebhookValidator{
		secret:  decoded,
		logger:  logger,
		enabled: true,
		now:     time.Now,
	}, nil
}

// Validate verifies the signature headers against the raw request body
func (wv *WebhookValidator) Validate(req *http.Request, body []byte) ValidationResult {
	if !wv.enabled {
		wv.logger.Debug("Webhook validation disabled - allowing request")
		return ValidationResult{Valid: true}
	}

	msgID := req.Header.Get(SignatureIDHeader)
	timestamp := req.Header.Get(SignatureTimestampHeader)
	signatures := req.Header.Get(SignatureHeader)

	if msgID == "" || timestamp == "" || signatures == "" {
		return wv.fail("missing signature headers")
	}

	if err := wv.validateTimestamp(timestamp); err != nil {
		return wv.fail(err.Error())
	}

	expected := wv.sign(msgID, timestamp, body)

	// The header may carry several space-separated versioned signatures
	for _, versioned := range strings.Fields(signatures) {
		parts := strings.SplitN(versioned, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		provided, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		if hmac.Equal(provided, expected) {
			wv.logger.Debug("Webhook signature validated", zap.String("msg_id", msgID))
			return ValidationResult{Valid: true}
		}
	}

	return wv.fail("signature mismatch")
}

// validateTimestamp rejects stale or future-dated deliveries to prevent
// replay attacks.
func (wv *WebhookValidator) validateTimestamp(timestamp string) error {
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp format: %w", err)
	}

	ts := time.Unix(unix, 0)
	now := wv.now()

	if now.Sub(ts) > MaxWebhookAge {
		return fmt.Errorf("request too old: %v (max age: %v)", now.Sub(ts), MaxWebhookAge)
	}
	if ts.After(now.Add(1 * time.Minute)) {
		return fmt.Errorf("request timestamp is in the future")
	}

	return nil
}

// sign computes the HMAC-SHA256 signature over "id.timestamp.payload"
func (wv *WebhookValidator) sign(msgID, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, wv.secret)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

func (wv *WebhookValidator) fail(reason string) ValidationResult {
	wv.logger.Warn("Webhook validation failed", zap.String("reason", reason))
	return ValidationResult{Valid: false, ErrorMessage: reason}
}

// IsValidationEnabled returns whether signature validation is enabled
func (wv *WebhookValidator) IsValidationEnabled() bool {
	return wv.enabled
}
