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

// Package llm talks to the external chat-completion provider. Calls run
// two nested loops: an outer model-fallback loop (primary, then fallback)
// and an inner retry loop per model (3 attempts, exponential backoff on
// HTTP 429/5xx, fail fast otherwise). Responses are parsed defensively
// and sanitised so the downstream never sees malformed shapes.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// Request shaping constants.
const (
	// MaxBodyChars bounds the contract text sent to the provider.
	MaxBodyChars = 15000
	// TruncationMarker is appended to bodies cut at MaxBodyChars.
	TruncationMarker = "\n\n[TRUNCATED: input exceeded analysis window]"

	temperature      = 0.2
	maxTokens        = 2048
	callTimeout      = 60 * time.Second
	attemptsPerModel = 3
)

// Config selects the provider endpoint and the model chain.
type Config struct {
	BaseURL       string
	APIKey        string
	PrimaryModel  string
	FallbackModel string

	// RetryBackoff is the first retry delay; it doubles per attempt.
	// Zero selects the production default of 2s. Tests shrink it.
	RetryBackoff time.Duration
	// CallTimeout bounds one HTTP attempt; zero selects 60s.
	CallTimeout time.Duration
}

// Meta reports which model answered and what it cost.
type Meta struct {
	Model      string
	TokensUsed int
	Duration   time.Duration
}

// Client is the provider HTTP client.
type Client struct {
	httpc *http.Client
	cfg   Config
}

// New builds a client; the http.Client is shared across calls.
func New(cfg Config) *Client {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = callTimeout
	}
	return &Client{httpc: &http.Client{}, cfg: cfg}
}

// Truncate bounds a body at MaxBodyChars, appending the marker when cut.
// The cut backs off to a rune boundary so the result stays valid UTF-8.
func Truncate(body string) string {
	if len(body) <= MaxBodyChars {
		return body
	}
	cut := MaxBodyChars
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + TruncationMarker
}

// AnalyzeContract runs the full-contract analysis prompt and returns a
// sanitised result.
func (c *Client) AnalyzeContract(ctx context.Context, body string) (*model.AnalysisResult, Meta, error) {
	content, meta, err := c.completeWithFallback(ctx, analysisSystemPrompt, analysisUserPrompt(Truncate(body)))
	if err != nil {
		return nil, meta, err
	}
	raw, err := parseLoose(content)
	if err != nil {
		return nil, meta, fmt.Errorf("unparseable model output: %v: %w", err, model.ErrPermanentUpstream)
	}
	return SanitizeAnalysis(raw), meta, nil
}

// ExplainDiff runs the version-comparison prompt over a unified diff.
func (c *Client) ExplainDiff(ctx context.Context, title, diffText string) (*model.DiffExplanation, Meta, error) {
	content, meta, err := c.completeWithFallback(ctx, diffSystemPrompt, diffUserPrompt(title, Truncate(diffText)))
	if err != nil {
		return nil, meta, err
	}
	raw, err := parseLoose(content)
	if err != nil {
		return nil, meta, fmt.Errorf("unparseable model output: %v: %w", err, model.ErrPermanentUpstream)
	}
	return SanitizeDiff(raw), meta, nil
}

// completeWithFallback tries the primary model, then the fallback once
// more. When both fail the error is terminal.
func (c *Client) completeWithFallback(ctx context.Context, system, user string) (string, Meta, error) {
	var meta Meta
	var lastErr error
	for _, m := range []string{c.cfg.PrimaryModel, c.cfg.FallbackModel} {
		if m == "" {
			continue
		}
		start := time.Now()
		content, tokens, err := c.completeWithRetry(ctx, m, system, user)
		meta = Meta{Model: m, TokensUsed: tokens, Duration: time.Since(start)}
		if err == nil {
			return content, meta, nil
		}
		lastErr = err
		log.WithError(err).WithField("model", m).Warn("llm: model failed, falling back")
	}
	return "", meta, fmt.Errorf("all models exhausted: %v: %w", lastErr, model.ErrPermanentUpstream)
}

// completeWithRetry retries one model on retriable failures with
// exponential backoff (2s, 4s, 8s) for up to three attempts total.
func (c *Client) completeWithRetry(ctx context.Context, mdl, system, user string) (string, int, error) {
	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= attemptsPerModel; attempt++ {
		content, tokens, err := c.complete(ctx, mdl, system, user)
		if err == nil {
			return content, tokens, nil
		}
		lastErr = err
		if !retriable(err) {
			return "", 0, err
		}
		if attempt == attemptsPerModel {
			break
		}
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", 0, lastErr
}

// Provider wire shapes (chat-completions style).

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// complete performs one HTTP attempt with the per-call timeout.
func (c *Client) complete(ctx context.Context, mdl, system, user string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model: mdl,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Network-level failures (timeouts, refused connections) are
		// retriable like 5xx.
		return "", 0, fmt.Errorf("provider call: %v: %w", err, model.ErrTransientUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return "", 0, fmt.Errorf("provider status %d: %w", resp.StatusCode, model.ErrTransientUpstream)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("provider status %d: %s: %w", resp.StatusCode, body, model.ErrPermanentUpstream)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("decode provider response: %v: %w", err, model.ErrPermanentUpstream)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("provider returned no choices: %w", model.ErrPermanentUpstream)
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

// retriable classifies an attempt error for the inner retry loop.
func retriable(err error) bool {
	return errors.Is(err, model.ErrTransientUpstream)
}
