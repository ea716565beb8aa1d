// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// newProvider stubs the chat-completions endpoint. The handler sees every
// HTTP attempt, including retries.
func newProvider(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Config) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, Config{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		PrimaryModel:  "primary-model",
		FallbackModel: "fallback-model",
		RetryBackoff:  1, // effectively no sleep in tests
	}
}

func chatOK(content string, tokens int) []byte {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		"usage":   map[string]any{"total_tokens": tokens},
	})
	return raw
}

func TestAnalyzeContract_HappyPath(t *testing.T) {
	var calls int32
	var gotModel string
	_, cfg := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		gotModel, _ = req["model"].(string)
		if req["temperature"] != 0.2 {
			t.Errorf("temperature got %v want 0.2", req["temperature"])
		}
		if rf, _ := req["response_format"].(map[string]any); rf["type"] != "json_object" {
			t.Errorf("response_format got %v", req["response_format"])
		}
		w.Write(chatOK(`{"summary":"Standard MSA.","riskScore":40,"riskLevel":"medium","clauses":["termination"],"obligations":{"yourObligations":["pay"],"otherPartyObligations":["deliver"]},"parties":["Acme","Beta"],"keyDates":{"expiry":"2027-01-31"}}`, 321))
	})

	c := New(cfg)
	res, meta, err := c.AnalyzeContract(context.Background(), "A very long contract body with a termination clause.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", calls)
	}
	if gotModel != "primary-model" || meta.Model != "primary-model" {
		t.Fatalf("expected primary model, got %q / %q", gotModel, meta.Model)
	}
	if meta.TokensUsed != 321 {
		t.Fatalf("tokens got %d want 321", meta.TokensUsed)
	}
	if res.RiskScore != 40 || res.RiskLevel != model.RiskMedium {
		t.Fatalf("risk got %d/%s", res.RiskScore, res.RiskLevel)
	}
	if dates := ParseDates(res.KeyDates); dates.Expiry == nil {
		t.Fatalf("expected parseable expiry date, keyDates=%v", res.KeyDates)
	}
}

func TestCompleteWithRetry_RetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	_, cfg := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "upstream sad", http.StatusInternalServerError)
			return
		}
		w.Write(chatOK(`{"summary":"ok","riskScore":10,"riskLevel":"low"}`, 5))
	})

	c := New(cfg)
	res, meta, err := c.AnalyzeContract(context.Background(), "body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if meta.Model != "primary-model" {
		t.Fatalf("should have succeeded on the primary model, got %q", meta.Model)
	}
	if res.RiskLevel != model.RiskLow {
		t.Fatalf("risk level got %s", res.RiskLevel)
	}
}

func TestCompleteWithFallback_SixCallsThenTerminal(t *testing.T) {
	// Always-500 provider: 3 attempts on the primary plus 3 on the
	// fallback, then a permanent upstream error.
	var calls int32
	models := map[string]int32{}
	_, cfg := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		m, _ := req["model"].(string)
		models[m]++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := New(cfg)
	_, _, err := c.AnalyzeContract(context.Background(), "body")
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if !errors.Is(err, model.ErrPermanentUpstream) {
		t.Fatalf("expected permanent upstream, got %v", err)
	}
	if calls != 6 {
		t.Fatalf("expected 6 provider calls (3 per model), got %d", calls)
	}
	if models["primary-model"] != 3 || models["fallback-model"] != 3 {
		t.Fatalf("per-model attempts: %v", models)
	}
}

func TestComplete_FailsFastOnClientError(t *testing.T) {
	// 400s are not retried within a model; the fallback model still gets
	// its chance.
	var calls int32
	_, cfg := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	c := New(cfg)
	_, _, err := c.AnalyzeContract(context.Background(), "body")
	if !errors.Is(err, model.ErrPermanentUpstream) {
		t.Fatalf("expected permanent upstream, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 1 call per model, got %d", calls)
	}
}

func TestRetryOn429(t *testing.T) {
	var calls int32
	_, cfg := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write(chatOK(`{"summary":"ok","riskScore":20}`, 2))
	})

	c := New(cfg)
	if _, _, err := c.AnalyzeContract(context.Background(), "body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected retry after 429, got %d calls", calls)
	}
}

func TestTruncate_LongBodyGetsMarker(t *testing.T) {
	long := strings.Repeat("x", MaxBodyChars+100)
	got := Truncate(long)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("expected truncation marker")
	}
	if len(got) != MaxBodyChars+len(TruncationMarker) {
		t.Fatalf("truncated length got %d", len(got))
	}
	short := "short body"
	if Truncate(short) != short {
		t.Fatalf("short bodies must pass through unchanged")
	}
}

func TestTruncate_BacksOffToRuneBoundary(t *testing.T) {
	// Place a three-byte rune straddling the cut so a byte slice would
	// split it.
	body := strings.Repeat("x", MaxBodyChars-1) + strings.Repeat("€", 50)
	got := Truncate(body)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated body must stay valid UTF-8")
	}
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("expected truncation marker")
	}
	cut := strings.TrimSuffix(got, TruncationMarker)
	if len(cut) != MaxBodyChars-1 {
		t.Fatalf("cut must back off to the rune boundary, got %d bytes", len(cut))
	}
}

func TestExplainDiff_UsesDiffPrompt(t *testing.T) {
	_, cfg := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		msgs := req["messages"].([]any)
		user := msgs[1].(map[string]any)["content"].(string)
		if !strings.Contains(user, "Unified diff") {
			t.Errorf("diff prompt missing, got %q", user)
		}
		w.Write(chatOK(`{"summary":"Payment terms changed","changesAnalysis":"Net-30 to Net-60","newRisks":["cashflow"],"recommendation":"negotiate"}`, 7))
	})

	c := New(cfg)
	exp, _, err := c.ExplainDiff(context.Background(), "MSA", "--- a\n+++ b\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp.Summary != "Payment terms changed" || len(exp.NewRisks) != 1 {
		t.Fatalf("unexpected explanation: %+v", exp)
	}
}
