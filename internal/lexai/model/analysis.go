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

package model

import "time"

// AnalysisState is the lifecycle state of an Analysis.
type AnalysisState string

const (
	AnalysisPending    AnalysisState = "pending"
	AnalysisProcessing AnalysisState = "processing"
	AnalysisCompleted  AnalysisState = "completed"
	AnalysisFailed     AnalysisState = "failed"
)

// Terminal reports whether the state is completed or failed.
func (s AnalysisState) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed
}

// RiskLevel classifies an analysis risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ValidRiskLevel reports whether s is one of the four known levels.
func ValidRiskLevel(s string) bool {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RiskLevelForScore derives a level from a 0-100 score when the model
// returned an unusable level.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Obligations split the extracted duties by party.
type Obligations struct {
	YourObligations       []string `bson:"yourObligations" json:"yourObligations"`
	OtherPartyObligations []string `bson:"otherPartyObligations" json:"otherPartyObligations"`
}

// AnalysisResult is the sanitised payload produced by the model client.
// Sanitisation guarantees: RiskScore in [0,100], RiskLevel one of the four
// levels, Summary non-empty, slices and KeyDates non-nil.
type AnalysisResult struct {
	Summary    string            `bson:"summary" json:"summary"`
	RiskScore  int               `bson:"riskScore" json:"riskScore"`
	RiskLevel  RiskLevel         `bson:"riskLevel" json:"riskLevel"`
	Clauses    []string          `bson:"clauses" json:"clauses"`
	Obligation Obligations       `bson:"obligations" json:"obligations"`
	Parties    []string          `bson:"parties" json:"parties"`
	KeyDates   map[string]string `bson:"keyDates" json:"keyDates"`
}

// Analysis is one attempt to analyse a specific (contract, version) pair.
type Analysis struct {
	ID               string          `bson:"_id" json:"id"`
	TenantID         string          `bson:"tenantId" json:"tenantId"`
	ContractID       string          `bson:"contractId" json:"contractId"`
	UserID           string          `bson:"userId" json:"userId"`
	Version          int             `bson:"version" json:"version"`
	State            AnalysisState   `bson:"state" json:"state"`
	Result           *AnalysisResult `bson:"result,omitempty" json:"result,omitempty"`
	AIModel          string          `bson:"aiModel,omitempty" json:"aiModel,omitempty"`
	TokensUsed       int             `bson:"tokensUsed,omitempty" json:"tokensUsed,omitempty"`
	ProcessingTimeMs int64           `bson:"processingTimeMs,omitempty" json:"processingTimeMs,omitempty"`
	RetryCount       int             `bson:"retryCount" json:"retryCount"`
	FailureReason    string          `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	CacheKey         string          `bson:"cacheKey" json:"cacheKey"`
	CreatedAt        time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// CachedResult is the compact summary stored in the result cache under
// analysis:{fingerprint}. It is the authoritative result for every
// analysis whose cacheKey equals that fingerprint.
type CachedResult struct {
	AnalysisID string    `json:"analysisId"`
	Summary    string    `json:"summary"`
	RiskScore  int       `json:"riskScore"`
	RiskLevel  RiskLevel `json:"riskLevel"`
}

// DiffExplanation is the structured output of the diff analysis path.
type DiffExplanation struct {
	Summary         string   `json:"summary"`
	ChangesAnalysis string   `json:"changesAnalysis"`
	NewRisks        []string `json:"newRisks"`
	Recommendation  string   `json:"recommendation"`
}
