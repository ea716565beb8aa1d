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

package worker

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/bus"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/mailer"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/queue"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/store"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/telemetry"
)

// Mailer is the outbound-mail surface the alert worker needs.
type Mailer interface {
	Enqueue(msg mailer.Message)
}

// AlertWorker consumes expiry alert jobs: one socket event per tenant
// plus one mail per member. Failures are not retried; the scheduler
// already recorded the alert as fired, and repeating a partial fan-out
// would spam the members who did get it.
type AlertWorker struct {
	members store.MemberStore
	emit    bus.Emitter
	mail    Mailer
}

// NewAlertWorker wires the alert consumer.
func NewAlertWorker(members store.MemberStore, emit bus.Emitter, mail Mailer) *AlertWorker {
	return &AlertWorker{members: members, emit: emit, mail: mail}
}

// Handle settles exactly one alert delivery.
func (w *AlertWorker) Handle(ctx context.Context, d queue.Delivery) {
	var job model.AlertJob
	if err := json.Unmarshal(d.Body(), &job); err != nil {
		log.WithError(err).Warn("alert worker: dropping undecodable job")
		w.settleAck(d)
		return
	}
	logger := log.WithFields(log.Fields{
		"contract": job.ContractID, "tenant": job.TenantID, "threshold": job.Threshold,
	})

	members, err := w.members.ListByTenant(ctx, job.TenantID)
	if err != nil {
		logger.WithError(err).Error("alert worker: resolving members")
		telemetry.ObserveJobOutcome("dead_letter")
		if nackErr := d.Nack(false); nackErr != nil {
			logger.WithError(nackErr).Error("alert worker: nack failed")
		}
		return
	}

	w.emit.Emit(ctx, model.OrgRoom(job.TenantID), model.EventContractExpiring, model.ContractExpiringPayload{
		ContractID:      job.ContractID,
		Title:           job.Title,
		DaysUntilExpiry: job.DaysUntilExpiry,
		ExpiryDate:      job.ExpiryDate,
	})

	for _, m := range members {
		if m.Email == "" {
			continue
		}
		w.mail.Enqueue(mailer.Message{
			To:      m.Email,
			Subject: fmt.Sprintf("Contract %q expires in %d days", job.Title, job.DaysUntilExpiry),
			Body: fmt.Sprintf("The contract %q expires on %s (%d days from now). Review it before the deadline.",
				job.Title, job.ExpiryDate.UTC().Format("2006-01-02"), job.DaysUntilExpiry),
		})
	}

	logger.WithField("members", len(members)).Info("alert worker: alert delivered")
	w.settleAck(d)
}

func (w *AlertWorker) settleAck(d queue.Delivery) {
	telemetry.ObserveJobOutcome("ack")
	if err := d.Ack(); err != nil {
		log.WithError(err).Error("alert worker: ack failed")
	}
}
