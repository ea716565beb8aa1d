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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/mailer"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

type fakeMembers struct {
	members []model.Member
	err     error
}

func (f *fakeMembers) ListByTenant(_ context.Context, _ string) ([]model.Member, error) {
	return f.members, f.err
}

type fakeMailer struct{ sent []mailer.Message }

func (f *fakeMailer) Enqueue(msg mailer.Message) { f.sent = append(f.sent, msg) }

func alertJob() model.AlertJob {
	return model.AlertJob{
		ContractID:      "c1",
		TenantID:        "t1",
		Title:           "MSA",
		ExpiryDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		DaysUntilExpiry: 7,
		Threshold:       7,
	}
}

func TestAlertWorker_FansOut(t *testing.T) {
	members := &fakeMembers{members: []model.Member{
		{ID: "u1", Email: "a@example.com"},
		{ID: "u2", Email: ""}, // no address, skipped
		{ID: "u3", Email: "c@example.com"},
	}}
	emitter := &fakeEmitter{}
	mail := &fakeMailer{}
	w := NewAlertWorker(members, emitter, mail)
	d := deliveryFor(t, alertJob())

	w.Handle(context.Background(), d)

	if !d.acked || d.nacked {
		t.Fatalf("settlement: %+v", d)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("events: %+v", emitter.events)
	}
	ev := emitter.events[0]
	if ev.room != "org:t1" || ev.event != model.EventContractExpiring {
		t.Fatalf("event routing: %+v", ev)
	}
	payload := ev.payload.(model.ContractExpiringPayload)
	if payload.DaysUntilExpiry != 7 || payload.Title != "MSA" {
		t.Fatalf("payload: %+v", payload)
	}
	if len(mail.sent) != 2 {
		t.Fatalf("expected 2 mails, got %d", len(mail.sent))
	}
	if !strings.Contains(mail.sent[0].Subject, "7 days") {
		t.Fatalf("subject: %q", mail.sent[0].Subject)
	}
}

func TestAlertWorker_MemberLookupFailureDeadLetters(t *testing.T) {
	members := &fakeMembers{err: errors.New("store down")}
	emitter := &fakeEmitter{}
	mail := &fakeMailer{}
	w := NewAlertWorker(members, emitter, mail)
	d := deliveryFor(t, alertJob())

	w.Handle(context.Background(), d)

	if !d.nacked || d.requeue {
		t.Fatalf("must nack without requeue: %+v", d)
	}
	if len(emitter.events) != 0 || len(mail.sent) != 0 {
		t.Fatalf("failure must emit nothing")
	}
}

func TestAlertWorker_MalformedJobAcked(t *testing.T) {
	w := NewAlertWorker(&fakeMembers{}, &fakeEmitter{}, &fakeMailer{})
	d := &fakeDelivery{body: []byte("nope")}
	w.Handle(context.Background(), d)
	if !d.acked {
		t.Fatalf("malformed alert job must be dropped via ack")
	}
}
