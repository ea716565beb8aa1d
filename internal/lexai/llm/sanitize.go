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
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// defaultSummary replaces an empty or missing model summary.
const defaultSummary = "No summary available."

// parseLoose extracts a JSON object from model output. Strategy order:
// direct parse, fenced code block, then the substring between the first
// '{' and the last '}'.
func parseLoose(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)

	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return out, nil
	}

	if fenced, ok := extractFence(content); ok {
		if err := json.Unmarshal([]byte(fenced), &out); err == nil {
			return out, nil
		}
	}

	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &out); err == nil {
			return out, nil
		}
	}
	return nil, errors.New("no JSON object found in model output")
}

// extractFence returns the contents of the first ``` fenced block.
func extractFence(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	rest := s[open+3:]
	// Skip an optional language tag on the opening fence line.
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// SanitizeAnalysis applies safe defaults so the downstream never sees a
// malformed analysis shape. This is part of the model-client contract,
// not a fallback.
func SanitizeAnalysis(raw map[string]any) *model.AnalysisResult {
	score := coerceScore(raw["riskScore"])
	level := model.RiskLevel(coerceString(raw["riskLevel"]))
	if !model.ValidRiskLevel(string(level)) {
		level = model.RiskLevelForScore(score)
	}
	summary := strings.TrimSpace(coerceString(raw["summary"]))
	if summary == "" {
		summary = defaultSummary
	}

	res := &model.AnalysisResult{
		Summary:   summary,
		RiskScore: score,
		RiskLevel: level,
		Clauses:   coerceStrings(raw["clauses"]),
		Parties:   coerceStrings(raw["parties"]),
		KeyDates:  coerceStringMap(raw["keyDates"]),
	}
	if obl, ok := raw["obligations"].(map[string]any); ok {
		res.Obligation.YourObligations = coerceStrings(obl["yourObligations"])
		res.Obligation.OtherPartyObligations = coerceStrings(obl["otherPartyObligations"])
	} else {
		res.Obligation.YourObligations = []string{}
		res.Obligation.OtherPartyObligations = []string{}
	}
	return res
}

// SanitizeDiff applies safe defaults to a diff explanation.
func SanitizeDiff(raw map[string]any) *model.DiffExplanation {
	summary := strings.TrimSpace(coerceString(raw["summary"]))
	if summary == "" {
		summary = defaultSummary
	}
	return &model.DiffExplanation{
		Summary:         summary,
		ChangesAnalysis: coerceString(raw["changesAnalysis"]),
		NewRisks:        coerceStrings(raw["newRisks"]),
		Recommendation:  coerceString(raw["recommendation"]),
	}
}

// ParseDates interprets the sanitised keyDates object. Unparseable values
// stay nil so the worker never overwrites contract dates with garbage.
func ParseDates(keyDates map[string]string) model.ContractDates {
	return model.ContractDates{
		Effective: parseDate(keyDates["effective"]),
		Expiry:    parseDate(keyDates["expiry"]),
		Renewal:   parseDate(keyDates["renewal"]),
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006", "January 2, 2006"}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// coerceScore accepts numbers and numeric strings, clamping to [0,100];
// anything else defaults to 50.
func coerceScore(v any) int {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 50
		}
		return clampScore(int(math.Round(n)))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return clampScore(int(math.Round(f)))
		}
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return clampScore(int(math.Round(f)))
		}
	}
	return 50
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func coerceString(v any) string {
	s, _ := v.(string)
	return s
}

// coerceStrings always returns a non-nil slice; non-string elements are
// dropped.
func coerceStrings(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// coerceStringMap always returns a non-nil map; non-string values are
// stringified when scalar and dropped otherwise.
func coerceStringMap(v any) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range m {
		switch t := val.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		}
	}
	return out
}
