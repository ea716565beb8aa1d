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

// Outbound WebSocket event names.
const (
	EventAnalysisComplete = "analysis:complete"
	EventAnalysisFailed   = "analysis:failed"
	EventContractExpiring = "contract:expiring"
	EventDiffComplete     = "diff:complete"
)

// Room name helpers. Every authenticated socket auto-joins its user room;
// org rooms are joined on request, restricted to the connection's tenant.
func UserRoom(userID string) string  { return "user:" + userID }
func OrgRoom(tenantID string) string { return "org:" + tenantID }

const AdminRoom = "admin"

// AnalysisCompletePayload is the payload of an analysis:complete event.
type AnalysisCompletePayload struct {
	ContractID string    `json:"contractId"`
	AnalysisID string    `json:"analysisId"`
	RiskScore  int       `json:"riskScore"`
	RiskLevel  RiskLevel `json:"riskLevel"`
}

// AnalysisFailedPayload is the payload of an analysis:failed event.
type AnalysisFailedPayload struct {
	ContractID string `json:"contractId"`
	Reason     string `json:"reason"`
}

// ContractExpiringPayload is the payload of a contract:expiring event.
type ContractExpiringPayload struct {
	ContractID      string    `json:"contractId"`
	Title           string    `json:"title"`
	DaysUntilExpiry int       `json:"daysUntilExpiry"`
	ExpiryDate      time.Time `json:"expiryDate"`
}

// DiffCompletePayload is the payload of a diff:complete event.
type DiffCompletePayload struct {
	ContractID      string   `json:"contractId"`
	VersionA        int      `json:"versionA"`
	VersionB        int      `json:"versionB"`
	Summary         string   `json:"summary"`
	ChangesAnalysis string   `json:"changesAnalysis"`
	NewRisks        []string `json:"newRisks"`
	Recommendation  string   `json:"recommendation"`
}
