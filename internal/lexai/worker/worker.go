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

// Package worker consumes the job queues. The analysis worker owns the
// expensive path: one model call per job, bounded by the cache recheck
// that collapses duplicate spend, and an in-band retry budget before a
// job dead-letters. The alert worker fans expiry notifications out to
// tenant members. Both run at prefetch=1 with manual acknowledgement.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/bus"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/fingerprint"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/kv"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/llm"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/queue"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/store"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/telemetry"
)

// MaxRetries bounds in-band republishes of a failed analysis job. A job
// observed with RetryCount >= MaxRetries dead-letters instead.
const MaxRetries = 2

// Analyzer is the model client surface the worker needs.
type Analyzer interface {
	AnalyzeContract(ctx context.Context, body string) (*model.AnalysisResult, llm.Meta, error)
	ExplainDiff(ctx context.Context, title, diffText string) (*model.DiffExplanation, llm.Meta, error)
}

// AnalysisWorker processes analysis and diff jobs.
type AnalysisWorker struct {
	analyses  store.AnalysisStore
	contracts store.ContractStore
	cache     *kv.Cache
	lock      *kv.Lock
	analyzer  Analyzer
	pub       queue.Publisher
	emit      bus.Emitter

	now func() time.Time
}

// NewAnalysisWorker wires the analysis consumer.
func NewAnalysisWorker(analyses store.AnalysisStore, contracts store.ContractStore,
	cache *kv.Cache, lock *kv.Lock, analyzer Analyzer, pub queue.Publisher, emit bus.Emitter) *AnalysisWorker {
	return &AnalysisWorker{
		analyses:  analyses,
		contracts: contracts,
		cache:     cache,
		lock:      lock,
		analyzer:  analyzer,
		pub:       pub,
		emit:      emit,
		now:       time.Now,
	}
}

// Handle settles exactly one delivery.
func (w *AnalysisWorker) Handle(ctx context.Context, d queue.Delivery) {
	var job model.AnalysisJob
	if err := json.Unmarshal(d.Body(), &job); err != nil {
		// A malformed payload can never succeed; drop it rather than
		// poison the DLQ with garbage.
		log.WithError(err).Warn("worker: dropping undecodable job")
		w.ack(d)
		return
	}

	if job.Type == model.JobTypeDiff {
		w.handleDiff(ctx, d, job)
		return
	}
	w.handleAnalysis(ctx, d, job)
}

func (w *AnalysisWorker) handleAnalysis(ctx context.Context, d queue.Delivery, job model.AnalysisJob) {
	started := w.now()
	logger := log.WithFields(log.Fields{
		"job": job.JobID, "analysis": job.AnalysisID, "contract": job.ContractID, "retry": job.RetryCount,
	})

	// A failed transition is usually a transient store blip; it consumes
	// a retry rather than dead-lettering on first delivery.
	if err := w.analyses.MarkProcessing(ctx, job.AnalysisID); err != nil {
		logger.WithError(err).Error("worker: processing transition failed")
		w.retryOrFail(ctx, d, job, err)
		return
	}

	// Recheck the cache: another worker may have completed identical
	// content between admission and now. This is the correctness boundary
	// behind the advisory single-flight lock.
	if cached, hit, err := w.cache.Get(ctx, job.ContentHash); err == nil && hit {
		telemetry.ObserveCacheHit()
		res := &model.AnalysisResult{
			Summary:   cached.Summary,
			RiskScore: cached.RiskScore,
			RiskLevel: cached.RiskLevel,
			Clauses:   []string{},
			Parties:   []string{},
			KeyDates:  map[string]string{},
			Obligation: model.Obligations{
				YourObligations:       []string{},
				OtherPartyObligations: []string{},
			},
		}
		if err := w.analyses.Complete(ctx, job.AnalysisID, res, "cache", 0, w.sinceMs(started)); err != nil {
			logger.WithError(err).Error("worker: completing from cache")
			w.retryOrFail(ctx, d, job, err)
			return
		}
		w.emit.Emit(ctx, model.OrgRoom(job.TenantID), model.EventAnalysisComplete, model.AnalysisCompletePayload{
			ContractID: job.ContractID,
			AnalysisID: job.AnalysisID,
			RiskScore:  cached.RiskScore,
			RiskLevel:  cached.RiskLevel,
		})
		w.releaseLock(ctx, job.ContentHash)
		logger.Info("worker: completed from cache recheck")
		w.ack(d)
		return
	}

	res, meta, err := w.analyzer.AnalyzeContract(ctx, job.Content)
	if err != nil {
		telemetry.ObserveLLMCall("permanent", 0, 0)
		logger.WithError(err).Warn("worker: model analysis failed")
		w.retryOrFail(ctx, d, job, err)
		return
	}
	telemetry.ObserveLLMCall("ok", meta.TokensUsed, meta.Duration)

	if err := w.analyses.Complete(ctx, job.AnalysisID, res, meta.Model, meta.TokensUsed, w.sinceMs(started)); err != nil {
		logger.WithError(err).Error("worker: persisting result")
		w.retryOrFail(ctx, d, job, err)
		return
	}

	// Backfill extracted dates and parties onto the contract. The model's
	// silence never erases earlier values; failures here do not fail the
	// analysis.
	if err := w.contracts.ApplyAnalysisOutcome(ctx, job.ContractID, llm.ParseDates(res.KeyDates), res.Parties); err != nil {
		logger.WithError(err).Warn("worker: contract backfill failed")
	}

	// Cache write happens before the event publish so that a client
	// reacting to the event finds the entry.
	if err := w.cache.Put(ctx, job.ContentHash, &model.CachedResult{
		AnalysisID: job.AnalysisID,
		Summary:    res.Summary,
		RiskScore:  res.RiskScore,
		RiskLevel:  res.RiskLevel,
	}); err != nil {
		logger.WithError(err).Warn("worker: cache write failed")
	}

	w.emit.Emit(ctx, model.OrgRoom(job.TenantID), model.EventAnalysisComplete, model.AnalysisCompletePayload{
		ContractID: job.ContractID,
		AnalysisID: job.AnalysisID,
		RiskScore:  res.RiskScore,
		RiskLevel:  res.RiskLevel,
	})
	w.releaseLock(ctx, job.ContentHash)
	logger.WithFields(log.Fields{"model": meta.Model, "tokens": meta.TokensUsed}).
		Info("worker: analysis completed")
	w.ack(d)
}

// retryOrFail republishes the job with a bumped retry counter while
// budget remains; otherwise the analysis fails terminally and the job
// dead-letters.
func (w *AnalysisWorker) retryOrFail(ctx context.Context, d queue.Delivery, job model.AnalysisJob, cause error) {
	if job.RetryCount < MaxRetries {
		bumped := job
		bumped.RetryCount++
		bumped.QueuedAt = w.now().UTC()
		body, err := json.Marshal(bumped)
		if err == nil {
			err = w.pub.Publish(ctx, queue.QueueAnalysis, body)
		}
		if err == nil {
			telemetry.ObserveJobOutcome("retry")
			telemetry.ObservePublish(queue.QueueAnalysis)
			// Keep the stored row in step with the requeued job; a stale
			// count here only skews reporting, so failures are logged.
			if recErr := w.analyses.RecordRetry(ctx, job.AnalysisID, bumped.RetryCount); recErr != nil {
				log.WithError(recErr).WithField("analysis", job.AnalysisID).
					Error("worker: recording retry count")
			}
			log.WithFields(log.Fields{"job": job.JobID, "retry": bumped.RetryCount}).
				Info("worker: requeued for retry")
			if ackErr := d.Ack(); ackErr != nil {
				log.WithError(ackErr).Error("worker: ack failed")
			}
			return
		}
		log.WithError(err).WithField("job", job.JobID).Error("worker: retry republish failed")
		// Fall through to terminal failure rather than lose the job silently.
	}
	w.fail(ctx, d, job, fmt.Sprintf("analysis failed after %d retries: %v", job.RetryCount, cause))
}

// fail closes the analysis row, notifies the requester, releases the
// lock, and dead-letters the delivery.
func (w *AnalysisWorker) fail(ctx context.Context, d queue.Delivery, job model.AnalysisJob, reason string) {
	if job.AnalysisID != "" {
		if err := w.analyses.Fail(ctx, job.AnalysisID, reason); err != nil {
			log.WithError(err).WithField("analysis", job.AnalysisID).Error("worker: failing analysis row")
		}
	}
	w.emit.Emit(ctx, model.UserRoom(job.UserID), model.EventAnalysisFailed, model.AnalysisFailedPayload{
		ContractID: job.ContractID,
		Reason:     reason,
	})
	if job.ContentHash != "" {
		w.releaseLock(ctx, job.ContentHash)
	}
	telemetry.ObserveJobOutcome("dead_letter")
	if err := d.Nack(false); err != nil {
		log.WithError(err).Error("worker: nack failed")
	}
}

// handleDiff runs the lighter comparison path: one explanation call, one
// event. No cache involvement, no contract mutation, no retry budget:
// a failed diff job dead-letters immediately.
func (w *AnalysisWorker) handleDiff(ctx context.Context, d queue.Delivery, job model.AnalysisJob) {
	logger := log.WithFields(log.Fields{"job": job.JobID, "contract": job.ContractID})

	exp, meta, err := w.analyzer.ExplainDiff(ctx, job.ContractTitle, job.DiffText)
	if err != nil {
		telemetry.ObserveLLMCall("permanent", 0, 0)
		telemetry.ObserveJobOutcome("dead_letter")
		logger.WithError(err).Warn("worker: diff explanation failed")
		if nackErr := d.Nack(false); nackErr != nil {
			logger.WithError(nackErr).Error("worker: nack failed")
		}
		return
	}
	telemetry.ObserveLLMCall("ok", meta.TokensUsed, meta.Duration)

	w.emit.Emit(ctx, model.UserRoom(job.UserID), model.EventDiffComplete, model.DiffCompletePayload{
		ContractID:      job.ContractID,
		VersionA:        job.VersionA,
		VersionB:        job.VersionB,
		Summary:         exp.Summary,
		ChangesAnalysis: exp.ChangesAnalysis,
		NewRisks:        exp.NewRisks,
		Recommendation:  exp.Recommendation,
	})
	logger.Info("worker: diff explained")
	w.ack(d)
}

func (w *AnalysisWorker) releaseLock(ctx context.Context, fp string) {
	if err := w.lock.Release(ctx, fingerprint.LockKey(fp)); err != nil {
		log.WithError(err).WithField("fingerprint", fp).Warn("worker: lock release failed")
	}
}

func (w *AnalysisWorker) ack(d queue.Delivery) {
	telemetry.ObserveJobOutcome("ack")
	if err := d.Ack(); err != nil {
		log.WithError(err).Error("worker: ack failed")
	}
}

func (w *AnalysisWorker) sinceMs(t time.Time) int64 {
	return w.now().Sub(t).Milliseconds()
}
