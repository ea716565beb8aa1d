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

// Package admission decides what happens to an analysis request before
// any model spend: dedup against the result cache, single-flight against
// concurrent identical requests, monthly quota accounting, and finally a
// durable enqueue. The order is deliberate: a cache hit costs no quota,
// and attaching to an in-flight analysis costs neither quota nor a new
// job.
package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/diff"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/fingerprint"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/kv"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/queue"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/store"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/telemetry"
)

// LockTTL bounds how long a single-flight lock can outlive its holder.
const LockTTL = 5 * time.Minute

// MinBodyChars is the shortest contract body worth analysing.
const MinBodyChars = 50

// Outcomes of an admission decision.
const (
	OutcomeQueued   = "queued"
	OutcomeCacheHit = "cache_hit"
	OutcomeInFlight = "in_flight"
)

// Identity is the caller on whose behalf admission runs.
type Identity struct {
	UserID   string
	TenantID string
	Plan     string
}

// Result is the admission decision returned to the API layer.
type Result struct {
	Outcome    string              `json:"outcome"`
	AnalysisID string              `json:"analysisId,omitempty"`
	JobID      string              `json:"jobId,omitempty"`
	Cached     *model.CachedResult `json:"cached,omitempty"`
	Quota      *kv.QuotaStatus     `json:"quota,omitempty"`
}

// Service runs the admission algorithm.
type Service struct {
	contracts store.ContractStore
	analyses  store.AnalysisStore
	cache     *kv.Cache
	lock      *kv.Lock
	quota     *kv.Quota
	pub       queue.Publisher

	now   func() time.Time
	newID func() string
}

// NewService wires the admission dependencies.
func NewService(contracts store.ContractStore, analyses store.AnalysisStore,
	cache *kv.Cache, lock *kv.Lock, quota *kv.Quota, pub queue.Publisher) *Service {
	return &Service{
		contracts: contracts,
		analyses:  analyses,
		cache:     cache,
		lock:      lock,
		quota:     quota,
		pub:       pub,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Analyze admits one analysis request for a contract version. version 0
// selects the current version.
//
// The decision runs in a fixed order: resolve and validate the body,
// check the result cache, check the quota, take the single-flight lock
// (attaching to the in-flight analysis on contention), create the
// pending row, consume quota, and enqueue. Quota is consumed only on the
// path that actually queues work, and is not refunded if the analysis
// later fails.
func (s *Service) Analyze(ctx context.Context, id Identity, contractID string, version int) (*Result, error) {
	contract, err := s.contracts.Get(ctx, id.TenantID, contractID)
	if err != nil {
		telemetry.ObserveAdmission("error")
		return nil, err
	}

	if version == 0 {
		version = contract.CurrentVersion()
	}
	ver := contract.VersionByNumber(version)
	if ver == nil {
		telemetry.ObserveAdmission("error")
		return nil, fmt.Errorf("contract %s version %d: %w", contractID, version, model.ErrVersionNotFound)
	}
	if len(ver.Body) < MinBodyChars {
		telemetry.ObserveAdmission("rejected")
		return nil, fmt.Errorf("contract body below %d characters: %w", MinBodyChars, model.ErrValidation)
	}

	fp := ver.Fingerprint
	if fp == "" {
		fp = fingerprint.Hash(ver.Body)
	}

	// Identical content analysed recently: answer from the cache, no
	// quota spend, no job.
	if cached, hit, err := s.cache.Get(ctx, fp); err != nil {
		telemetry.ObserveAdmission("error")
		return nil, fmt.Errorf("admission cache: %w: %v", model.ErrInfrastructure, err)
	} else if hit {
		telemetry.ObserveAdmission(OutcomeCacheHit)
		telemetry.ObserveCacheHit()
		return &Result{Outcome: OutcomeCacheHit, AnalysisID: cached.AnalysisID, Cached: cached}, nil
	}

	status, err := s.quota.Check(ctx, id.UserID, id.Plan)
	if err != nil {
		telemetry.ObserveAdmission("error")
		return nil, fmt.Errorf("admission quota: %w: %v", model.ErrInfrastructure, err)
	}
	if !status.Allowed {
		telemetry.ObserveAdmission("quota_exceeded")
		return nil, &model.QuotaExceededError{Used: status.Used, Limit: status.Limit, ResetsAt: status.ResetsAt}
	}

	acquired, err := s.lock.Acquire(ctx, fingerprint.LockKey(fp), LockTTL)
	if err != nil {
		telemetry.ObserveAdmission("error")
		return nil, fmt.Errorf("admission lock: %w: %v", model.ErrInfrastructure, err)
	}
	if !acquired {
		// Someone is already analysing this content. Attach to their
		// analysis instead of spending quota on a duplicate.
		inflight, err := s.analyses.FindInFlight(ctx, contractID, version)
		if err != nil {
			telemetry.ObserveAdmission("error")
			return nil, err
		}
		if inflight != nil {
			telemetry.ObserveAdmission(OutcomeInFlight)
			return &Result{Outcome: OutcomeInFlight, AnalysisID: inflight.ID}, nil
		}
		// Lock held by a worker for another contract with identical
		// content, or a stale lock. Proceed; the worker's cache recheck
		// collapses any duplicate spend.
		log.WithField("fingerprint", fp).Debug("admission: lock contended with no local in-flight row")
	}

	now := s.now().UTC()
	analysis := &model.Analysis{
		ID:         s.newID(),
		TenantID:   id.TenantID,
		ContractID: contractID,
		UserID:     id.UserID,
		Version:    version,
		State:      model.AnalysisPending,
		CacheKey:   fp,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.analyses.Create(ctx, analysis); err != nil {
		s.releaseLock(ctx, fp)
		telemetry.ObserveAdmission("error")
		return nil, err
	}

	used, err := s.quota.Increment(ctx, id.UserID)
	if err != nil {
		s.releaseLock(ctx, fp)
		telemetry.ObserveAdmission("error")
		return nil, fmt.Errorf("admission quota increment: %w: %v", model.ErrInfrastructure, err)
	}
	status.Used = used

	job := model.AnalysisJob{
		JobID:       s.newID(),
		ContractID:  contractID,
		AnalysisID:  analysis.ID,
		TenantID:    id.TenantID,
		UserID:      id.UserID,
		Content:     ver.Body,
		ContentHash: fp,
		Version:     version,
		QueuedAt:    now,
	}
	if err := s.publish(ctx, queue.QueueAnalysis, job); err != nil {
		// The pending row would wedge FindInFlight forever; close it out.
		if failErr := s.analyses.Fail(ctx, analysis.ID, "enqueue failed"); failErr != nil {
			log.WithError(failErr).WithField("analysis", analysis.ID).Error("admission: failing unqueued analysis")
		}
		s.releaseLock(ctx, fp)
		telemetry.ObserveAdmission("error")
		return nil, err
	}

	telemetry.ObserveAdmission(OutcomeQueued)
	log.WithFields(log.Fields{
		"contract": contractID, "analysis": analysis.ID, "version": version, "user": id.UserID,
	}).Info("admission: analysis queued")
	return &Result{Outcome: OutcomeQueued, AnalysisID: analysis.ID, JobID: job.JobID, Quota: &status}, nil
}

// Diff admits a version-comparison request. The textual diff is computed
// inline; only the model explanation is deferred to the queue. Free-plan
// callers are refused.
func (s *Service) Diff(ctx context.Context, id Identity, contractID string, versionA, versionB int) (*Result, error) {
	if id.Plan != "pro" && id.Plan != "enterprise" {
		return nil, fmt.Errorf("version comparison requires a paid plan: %w", model.ErrForbidden)
	}

	contract, err := s.contracts.Get(ctx, id.TenantID, contractID)
	if err != nil {
		return nil, err
	}
	va := contract.VersionByNumber(versionA)
	vb := contract.VersionByNumber(versionB)
	if va == nil || vb == nil {
		return nil, fmt.Errorf("contract %s versions %d/%d: %w", contractID, versionA, versionB, model.ErrVersionNotFound)
	}

	text := diff.Unified(
		fmt.Sprintf("version %d", versionA), va.Body,
		fmt.Sprintf("version %d", versionB), vb.Body,
	)

	job := model.AnalysisJob{
		JobID:         s.newID(),
		Type:          model.JobTypeDiff,
		ContractID:    contractID,
		TenantID:      id.TenantID,
		UserID:        id.UserID,
		ContractTitle: contract.Title,
		DiffText:      text,
		VersionA:      versionA,
		VersionB:      versionB,
		QueuedAt:      s.now().UTC(),
	}
	if err := s.publish(ctx, queue.QueueAnalysis, job); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"contract": contractID, "a": versionA, "b": versionB}).
		Info("admission: diff queued")
	return &Result{Outcome: OutcomeQueued, JobID: job.JobID}, nil
}

func (s *Service) publish(ctx context.Context, queueName string, job model.AnalysisJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("admission encode job: %w", err)
	}
	if err := s.pub.Publish(ctx, queueName, body); err != nil {
		return fmt.Errorf("admission enqueue: %w", err)
	}
	telemetry.ObservePublish(queueName)
	return nil
}

func (s *Service) releaseLock(ctx context.Context, fp string) {
	if err := s.lock.Release(ctx, fingerprint.LockKey(fp)); err != nil {
		log.WithError(err).WithField("fingerprint", fp).Warn("admission: lock release failed")
	}
}
