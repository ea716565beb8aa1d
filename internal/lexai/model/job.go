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

// Job types routed on the analysis queue. A missing Type means a full
// contract analysis; "diff" selects the version-comparison path.
const (
	JobTypeAnalysis = ""
	JobTypeDiff     = "diff"
)

// AnalysisJob is the payload published to the analysis queue. The same
// shape carries diff jobs (Type=="diff"), with the diff-specific fields
// populated instead of Content/ContentHash.
type AnalysisJob struct {
	JobID      string    `json:"jobId"`
	Type       string    `json:"type,omitempty"`
	ContractID string    `json:"contractId"`
	AnalysisID string    `json:"analysisId,omitempty"`
	TenantID   string    `json:"tenantId"`
	UserID     string    `json:"userId"`
	Content    string    `json:"content,omitempty"`
	ContentHash string   `json:"contentHash,omitempty"`
	Version    int       `json:"version,omitempty"`
	RetryCount int       `json:"retryCount"`
	QueuedAt   time.Time `json:"queuedAt"`

	// Diff variant fields.
	ContractTitle string `json:"contractTitle,omitempty"`
	DiffText      string `json:"diffText,omitempty"`
	VersionA      int    `json:"versionA,omitempty"`
	VersionB      int    `json:"versionB,omitempty"`
}

// AlertJob is the payload published to the alert queue when an expiry
// threshold fires for a contract.
type AlertJob struct {
	ContractID      string    `json:"contractId"`
	TenantID        string    `json:"tenantId"`
	Title           string    `json:"title"`
	ExpiryDate      time.Time `json:"expiryDate"`
	DaysUntilExpiry int       `json:"daysUntilExpiry"`
	Threshold       int       `json:"threshold"`
}
