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

// Package scheduler runs the daily expiry scan. Each run enumerates
// contracts carrying an expiry date and fires one alert job per
// (contract, threshold) pair at most once, ever: the conditional append
// of the alert record is the claim, and only the claim winner enqueues.
// Running the scan twice, or on two processes, produces no duplicates.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/queue"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/store"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/telemetry"
)

// Scan hour, UTC. Chosen to land in the quiet window for every tenant
// region we serve.
const scanHourUTC = 2

// MaxAlertWindowDays: contracts further out than this are ignored even
// if a misconfigured threshold would match.
const MaxAlertWindowDays = 90

// Scheduler owns the daily expiry scan.
type Scheduler struct {
	contracts store.ContractStore
	pub       queue.Publisher

	now func() time.Time
}

// New wires the scheduler.
func New(contracts store.ContractStore, pub queue.Publisher) *Scheduler {
	return &Scheduler{contracts: contracts, pub: pub, now: time.Now}
}

// Run blocks, firing RunOnce daily at the scan hour, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := nextScanTime(s.now().UTC())
		log.WithField("at", next.Format(time.RFC3339)).Info("scheduler: next expiry scan")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next.Sub(s.now())):
		}
		if _, err := s.RunOnce(ctx); err != nil {
			log.WithError(err).Error("scheduler: expiry scan failed")
		}
	}
}

// RunOnce scans every expiring contract and returns the number of alert
// jobs enqueued. Per-contract failures are logged and skipped; the scan
// always covers the full set.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	contracts, err := s.contracts.ListExpiring(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler list: %w", err)
	}

	now := s.now().UTC()
	fired := 0
	for i := range contracts {
		fired += s.scanContract(ctx, &contracts[i], now)
	}
	log.WithFields(log.Fields{"contracts": len(contracts), "alerts": fired}).
		Info("scheduler: expiry scan done")
	return fired, nil
}

func (s *Scheduler) scanContract(ctx context.Context, c *model.Contract, now time.Time) int {
	if c.Dates.Expiry == nil {
		return 0
	}
	remaining := daysUntil(now, *c.Dates.Expiry)
	if remaining < 0 || remaining > MaxAlertWindowDays {
		return 0
	}

	fired := 0
	for _, threshold := range c.AlertDays {
		if remaining > threshold || c.AlertFired(threshold) {
			continue
		}
		// Claim the (contract, threshold) pair before enqueueing. Losing
		// the claim means another run already fired it.
		won, err := s.contracts.AppendAlertRecord(ctx, c.ID, threshold, now)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"contract": c.ID, "threshold": threshold}).
				Error("scheduler: alert record append failed")
			continue
		}
		if !won {
			continue
		}
		if err := s.enqueue(ctx, c, remaining, threshold); err != nil {
			// The record is already appended; the alert for this threshold
			// is lost. Acceptable: losing one beats double-mailing a tenant.
			log.WithError(err).WithFields(log.Fields{"contract": c.ID, "threshold": threshold}).
				Error("scheduler: alert enqueue failed")
			continue
		}
		telemetry.ObserveAlertFired()
		fired++
	}
	return fired
}

func (s *Scheduler) enqueue(ctx context.Context, c *model.Contract, remaining, threshold int) error {
	job := model.AlertJob{
		ContractID:      c.ID,
		TenantID:        c.TenantID,
		Title:           c.Title,
		ExpiryDate:      c.Dates.Expiry.UTC(),
		DaysUntilExpiry: remaining,
		Threshold:       threshold,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("scheduler encode: %w", err)
	}
	if err := s.pub.Publish(ctx, queue.QueueAlerts, body); err != nil {
		return err
	}
	telemetry.ObservePublish(queue.QueueAlerts)
	return nil
}

// daysUntil counts whole UTC calendar days from now to expiry. Same-day
// expiry is 0; yesterday is -1.
func daysUntil(now, expiry time.Time) int {
	nowDate := truncateToDay(now)
	expiryDate := truncateToDay(expiry)
	return int(expiryDate.Sub(nowDate) / (24 * time.Hour))
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// nextScanTime returns the next 02:00 UTC strictly after now.
func nextScanTime(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), scanHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
