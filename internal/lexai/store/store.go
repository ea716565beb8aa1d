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

// Package store persists contracts and analyses in the document store.
//
// The interfaces here are the narrow surface the pipeline needs;
// implementations wrap MongoDB. Every mutation is a single conditional
// document update (findAndModify style) so concurrent writers stay safe
// without cross-document transactions. The only per-contract racy
// operation, the alertsSent append, is expressed as an array push
// conditional on the threshold's absence.
package store

import (
	"context"
	"time"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// ContractStore is the contract repository surface used by admission, the
// worker, and the expiry scheduler.
type ContractStore interface {
	// Create inserts a new contract with its initial version.
	Create(ctx context.Context, c *model.Contract) error
	// Get loads a contract scoped by tenant. Missing or soft-deleted
	// contracts return model.ErrNotFound.
	Get(ctx context.Context, tenantID, contractID string) (*model.Contract, error)
	// AppendVersion adds a new body as the next version and makes it
	// current. The append is conditional on the expected current version
	// count, keeping concurrent appends from assigning duplicate numbers.
	AppendVersion(ctx context.Context, tenantID, contractID, body, fp string) (*model.Contract, error)
	// ApplyAnalysisOutcome writes AI-extracted dates and parties onto the
	// contract. Nil dates and empty party lists are never written; the
	// model's silence must not erase earlier extractions.
	ApplyAnalysisOutcome(ctx context.Context, contractID string, dates model.ContractDates, parties []string) error
	// AppendAlertRecord appends {threshold, firedAt} if and only if no
	// record for that threshold exists. It reports whether this call won
	// the append, guaranteeing at-most-once firing per (contract, threshold).
	AppendAlertRecord(ctx context.Context, contractID string, threshold int, firedAt time.Time) (bool, error)
	// ListExpiring returns all non-deleted contracts with a non-null
	// expiry date.
	ListExpiring(ctx context.Context) ([]model.Contract, error)
	// SoftDelete flags a contract deleted without removing it.
	SoftDelete(ctx context.Context, tenantID, contractID string) error
}

// AnalysisStore is the analysis repository surface.
type AnalysisStore interface {
	// Create inserts a pending analysis row.
	Create(ctx context.Context, a *model.Analysis) error
	// Get loads an analysis scoped by tenant; model.ErrNotFound on miss.
	Get(ctx context.Context, tenantID, analysisID string) (*model.Analysis, error)
	// FindInFlight returns the non-terminal analysis for a (contract,
	// version) pair, or nil when none exists. At most one may exist.
	FindInFlight(ctx context.Context, contractID string, version int) (*model.Analysis, error)
	// MarkProcessing advances a row to state=processing.
	MarkProcessing(ctx context.Context, analysisID string) error
	// RecordRetry returns a row to state=pending with the bumped retry
	// count after an in-band republish.
	RecordRetry(ctx context.Context, analysisID string, retryCount int) error
	// Complete stores the result and advances to state=completed.
	Complete(ctx context.Context, analysisID string, res *model.AnalysisResult, aiModel string, tokensUsed int, processingTimeMs int64) error
	// Fail advances to state=failed with the terminal reason.
	Fail(ctx context.Context, analysisID, reason string) error
}

// MemberStore resolves tenant members for alert delivery.
type MemberStore interface {
	ListByTenant(ctx context.Context, tenantID string) ([]model.Member, error)
}
