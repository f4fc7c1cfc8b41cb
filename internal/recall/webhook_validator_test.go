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
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const testSecret = "whsec_dGVzdC1zaWduaW5nLXNlY3JldA==" // "test-signing-secret"

func signPayload(t *testing.T, secret, msgID, timestamp string, body []byte) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(secret[len("whsec_"):])
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookValidatorAcceptsValidSignature(t *testing.T) {
	validator, err := NewWebhookValidator(testSecret, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWebhookValidator: %v", err)
	}

	body := []byte(`{"event":"bot.in_call_recording"}`)
	msgID := "msg_2x9hK"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest("POST", "/recall/webhook", nil)
	req.Header.Set(SignatureIDHeader, msgID)
	req.Header.Set(SignatureTimestampHeader, ts)
	req.Header.Set(SignatureHeader, signPayload(t, testSecret, msgID, ts, body))

	result := validator.Validate(req, body)
	if !result.Valid {
		t.Errorf("expected valid signature, got error: %s", result.ErrorMessage)
	}
}

func TestWebhookValidatorAcceptsAnyOfMultipleSignatures(t *testing.T) {
	validator, err := NewWebhookValidator(testSecret, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWebhookValidator: %v", err)
	}

	body := []byte(`{"event":"bot.done"}`)
	msgID := "msg_multi"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	good := signPayload(t, testSecret, msgID, ts, body)

	req := httptest.NewRequest("POST", "/recall/webhook", nil)
	req.Header.Set(SignatureIDHeader, msgID)
	req.Header.Set(SignatureTimestampHeader, ts)
	req.Header.Set(SignatureHeader, "v1,Zm9vYmFy "+good)

	result := validator.Validate(req, body)
	if !result.Valid {
		t.Errorf("expected valid with one matching signature, got: %s", result.ErrorMessage)
	}
}

func TestWebhookValidatorRejectsTamperedBody(t *testing.T) {
	validator, err := NewWebhookValidator(testSecret, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWebhookValidator: %v", err)
	}

	body := []byte(`{"event":"bot.in_call_recording"}`)
	msgID := "msg_tampered"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest("POST", "/recall/webhook", nil)
	req.Header.Set(SignatureIDHeader, msgID)
	req.Header.Set(SignatureTimestampHeader, ts)
	req.Header.Set(SignatureHeader, signPayload(t, testSecret, msgID, ts, body))

	result := validator.Validate(req, []byte(`{"event":"bot.done"}`))
	if result.Valid {
		t.Error("expected tampered body to be rejected")
	}
}

func TestWebhookValidatorRejectsMissingHeaders(t *testing.T) {
	validator, err := NewWebhookValidator(testSecret, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWebhookValidator: %v", err)
	}

	req := httptest.NewRequest("POST", "/recall/webhook", nil)
	result := validator.Validate(req, []byte(`{}`))
	if result.Valid {
		t.Error("expected missing headers to be rejected")
	}
}

func TestWebhookValidatorRejectsStaleTimestamp(t *testing.T) {
	validator, err := NewWebhookValidator(testSecret, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWebhookValidator: %v", err)
	}

	body := []byte(`{}`)
	msgID := "msg_old"
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)

	req := httptest.NewRequest("POST", "/recall/webhook", nil)
	req.Header.Set(SignatureIDHeader, msgID)
	req.Header.Set(SignatureTimestampHeader, ts)
	req.Header.Set(SignatureHeader, signPayload(t, testSecret, msgID, ts, body))

	result := validator.Validate(req, body)
	if result.Valid {
		t.Error("expected stale timestamp to be rejected")
	}
}

func TestWebhookValidatorDisabledWithoutSecret(t *testing.T) {
	validator, err := NewWebhookValidator("", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWebhookValidator: %v", err)
	}
	if validator.IsValidationEnabled() {
		t.Error("expected validation to be disabled with empty secret")
	}

	req := httptest.NewRequest("POST", "/recall/webhook", nil)
	result := validator.Validate(req, []byte(`{}`))
	if !result.Valid {
		t.Error("disabled validator should accept unsigned requests")
	}
}

func TestWebhookValidatorRejectsBadSecret(t *testing.T) {
	_, err := NewWebhookValidator("whsec_not-base64!!!", zaptest.NewLogger(t))
	if err == nil {
		t.Error("expected error for malformed signing secret")
	}
}
