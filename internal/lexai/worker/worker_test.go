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
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/fingerprint"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/kv"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/llm"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// fakeDelivery records how it was settled.
type fakeDelivery struct {
	body    []byte
	acked   bool
	nacked  bool
	requeue bool
}

func deliveryFor(t *testing.T, v any) *fakeDelivery {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return &fakeDelivery{body: raw}
}

func (d *fakeDelivery) Body() []byte { return d.body }
func (d *fakeDelivery) Ack() error   { d.acked = true; return nil }
func (d *fakeDelivery) Nack(requeue bool) error {
	d.nacked = true
	d.requeue = requeue
	return nil
}

// fakeAnalyzer returns canned results or errors.
type fakeAnalyzer struct {
	result   *model.AnalysisResult
	diff     *model.DiffExplanation
	err      error
	calls    int
	lastBody string
}

func (f *fakeAnalyzer) AnalyzeContract(_ context.Context, body string) (*model.AnalysisResult, llm.Meta, error) {
	f.calls++
	f.lastBody = body
	if f.err != nil {
		return nil, llm.Meta{}, f.err
	}
	return f.result, llm.Meta{Model: "primary-model", TokensUsed: 100, Duration: time.Second}, nil
}

func (f *fakeAnalyzer) ExplainDiff(_ context.Context, _, _ string) (*model.DiffExplanation, llm.Meta, error) {
	f.calls++
	if f.err != nil {
		return nil, llm.Meta{}, f.err
	}
	return f.diff, llm.Meta{Model: "primary-model", TokensUsed: 50, Duration: time.Second}, nil
}

// fakeEmitter records emitted events.
type emitted struct {
	room, event string
	payload     any
}

type fakeEmitter struct{ events []emitted }

func (f *fakeEmitter) Emit(_ context.Context, room, event string, payload any) {
	f.events = append(f.events, emitted{room: room, event: event, payload: payload})
}

// fakeAnalyses tracks state transitions.
type fakeAnalyses struct {
	rows    map[string]*model.Analysis
	markErr error
}

func newFakeAnalyses(ids ...string) *fakeAnalyses {
	rows := map[string]*model.Analysis{}
	for _, id := range ids {
		rows[id] = &model.Analysis{ID: id, State: model.AnalysisPending}
	}
	return &fakeAnalyses{rows: rows}
}

func (f *fakeAnalyses) Create(_ context.Context, a *model.Analysis) error {
	f.rows[a.ID] = a
	return nil
}

func (f *fakeAnalyses) Get(_ context.Context, _, id string) (*model.Analysis, error) {
	a, ok := f.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return a, nil
}

func (f *fakeAnalyses) FindInFlight(context.Context, string, int) (*model.Analysis, error) {
	return nil, nil
}

func (f *fakeAnalyses) MarkProcessing(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	a, ok := f.rows[id]
	if !ok {
		return model.ErrNotFound
	}
	a.State = model.AnalysisProcessing
	return nil
}

func (f *fakeAnalyses) RecordRetry(_ context.Context, id string, retryCount int) error {
	a, ok := f.rows[id]
	if !ok {
		return model.ErrNotFound
	}
	a.State = model.AnalysisPending
	a.RetryCount = retryCount
	return nil
}

func (f *fakeAnalyses) Complete(_ context.Context, id string, res *model.AnalysisResult, aiModel string, tokens int, ms int64) error {
	a := f.rows[id]
	a.State = model.AnalysisCompleted
	a.Result = res
	a.AIModel = aiModel
	a.TokensUsed = tokens
	a.ProcessingTimeMs = ms
	return nil
}

func (f *fakeAnalyses) Fail(_ context.Context, id, reason string) error {
	a := f.rows[id]
	a.State = model.AnalysisFailed
	a.FailureReason = reason
	return nil
}

// fakeContracts records backfill calls.
type fakeContracts struct {
	outcomeDates   model.ContractDates
	outcomeParties []string
	outcomeCalls   int
}

func (f *fakeContracts) Create(context.Context, *model.Contract) error { panic("not used") }
func (f *fakeContracts) Get(context.Context, string, string) (*model.Contract, error) {
	panic("not used")
}
func (f *fakeContracts) AppendVersion(context.Context, string, string, string, string) (*model.Contract, error) {
	panic("not used")
}
func (f *fakeContracts) ApplyAnalysisOutcome(_ context.Context, _ string, dates model.ContractDates, parties []string) error {
	f.outcomeCalls++
	f.outcomeDates = dates
	f.outcomeParties = parties
	return nil
}
func (f *fakeContracts) AppendAlertRecord(context.Context, string, int, time.Time) (bool, error) {
	panic("not used")
}
func (f *fakeContracts) ListExpiring(context.Context) ([]model.Contract, error) { panic("not used") }
func (f *fakeContracts) SoftDelete(context.Context, string, string) error       { panic("not used") }

type fakePublisher struct {
	published []model.AnalysisJob
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	var job model.AnalysisJob
	if err := json.Unmarshal(body, &job); err != nil {
		return err
	}
	f.published = append(f.published, job)
	return nil
}

type workerFixture struct {
	w         *AnalysisWorker
	analyses  *fakeAnalyses
	contracts *fakeContracts
	analyzer  *fakeAnalyzer
	pub       *fakePublisher
	emitter   *fakeEmitter
	mr        *miniredis.Miniredis
	rdb       *redis.Client
}

func newWorkerFixture(t *testing.T, analysisIDs ...string) *workerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	fx := &workerFixture{
		analyses:  newFakeAnalyses(analysisIDs...),
		contracts: &fakeContracts{},
		analyzer:  &fakeAnalyzer{},
		pub:       &fakePublisher{},
		emitter:   &fakeEmitter{},
		mr:        mr,
		rdb:       rdb,
	}
	fx.w = NewAnalysisWorker(fx.analyses, fx.contracts,
		kv.NewCache(rdb, 0), kv.NewLock(rdb), fx.analyzer, fx.pub, fx.emitter)
	return fx
}

func analysisJob() model.AnalysisJob {
	body := "A very long contract body with a termination clause inside it."
	return model.AnalysisJob{
		JobID:       "j1",
		ContractID:  "c1",
		AnalysisID:  "a1",
		TenantID:    "t1",
		UserID:      "u1",
		Content:     body,
		ContentHash: fingerprint.Hash(body),
		Version:     1,
	}
}

func TestHandle_AnalysisHappyPath(t *testing.T) {
	fx := newWorkerFixture(t, "a1")
	fx.analyzer.result = &model.AnalysisResult{
		Summary:   "Standard MSA.",
		RiskScore: 40,
		RiskLevel: model.RiskMedium,
		Clauses:   []string{"termination"},
		Parties:   []string{"Acme", "Beta"},
		KeyDates:  map[string]string{"expiry": "2027-01-31"},
	}
	job := analysisJob()
	fx.mr.Set(fingerprint.LockKey(job.ContentHash), "1")
	d := deliveryFor(t, job)

	fx.w.Handle(context.Background(), d)

	if !d.acked || d.nacked {
		t.Fatalf("settlement: acked=%v nacked=%v", d.acked, d.nacked)
	}
	a := fx.analyses.rows["a1"]
	if a.State != model.AnalysisCompleted || a.AIModel != "primary-model" || a.TokensUsed != 100 {
		t.Fatalf("analysis row: %+v", a)
	}
	if fx.contracts.outcomeCalls != 1 || fx.contracts.outcomeDates.Expiry == nil {
		t.Fatalf("contract backfill: calls=%d dates=%+v", fx.contracts.outcomeCalls, fx.contracts.outcomeDates)
	}
	if len(fx.contracts.outcomeParties) != 2 {
		t.Fatalf("parties: %v", fx.contracts.outcomeParties)
	}

	cached, hit, err := kv.NewCache(fx.rdb, 0).Get(context.Background(), job.ContentHash)
	if err != nil || !hit || cached.RiskScore != 40 || cached.AnalysisID != "a1" {
		t.Fatalf("cache entry: hit=%v %+v err=%v", hit, cached, err)
	}

	if len(fx.emitter.events) != 1 {
		t.Fatalf("events: %+v", fx.emitter.events)
	}
	ev := fx.emitter.events[0]
	if ev.room != "org:t1" || ev.event != model.EventAnalysisComplete {
		t.Fatalf("event routing: %+v", ev)
	}
	if fx.mr.Exists(fingerprint.LockKey(job.ContentHash)) {
		t.Fatalf("lock must be released")
	}
}

func TestHandle_CacheRecheckShortCircuits(t *testing.T) {
	fx := newWorkerFixture(t, "a1")
	job := analysisJob()
	if err := kv.NewCache(fx.rdb, 0).Put(context.Background(), job.ContentHash, &model.CachedResult{
		AnalysisID: "earlier", Summary: "done already", RiskScore: 33, RiskLevel: model.RiskMedium,
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	d := deliveryFor(t, job)

	fx.w.Handle(context.Background(), d)

	if fx.analyzer.calls != 0 {
		t.Fatalf("model must not be called on cache recheck hit")
	}
	if !d.acked {
		t.Fatalf("delivery must be acked")
	}
	a := fx.analyses.rows["a1"]
	if a.State != model.AnalysisCompleted || a.Result.RiskScore != 33 || a.AIModel != "cache" {
		t.Fatalf("analysis row: %+v", a)
	}
	if len(fx.emitter.events) != 1 || fx.emitter.events[0].event != model.EventAnalysisComplete {
		t.Fatalf("events: %+v", fx.emitter.events)
	}
}

func TestHandle_RetryRepublishes(t *testing.T) {
	fx := newWorkerFixture(t, "a1")
	fx.analyzer.err = model.ErrPermanentUpstream
	d := deliveryFor(t, analysisJob())

	fx.w.Handle(context.Background(), d)

	if !d.acked || d.nacked {
		t.Fatalf("retry must ack the original: acked=%v nacked=%v", d.acked, d.nacked)
	}
	if len(fx.pub.published) != 1 || fx.pub.published[0].RetryCount != 1 {
		t.Fatalf("republish: %+v", fx.pub.published)
	}
	a := fx.analyses.rows["a1"]
	if a.State != model.AnalysisPending || a.RetryCount != 1 {
		t.Fatalf("row must return to pending with the bumped count: %+v", a)
	}
}

func TestHandle_ProcessingTransitionFailureConsumesRetry(t *testing.T) {
	fx := newWorkerFixture(t, "a1")
	fx.analyses.markErr = errors.New("primary stepped down")
	d := deliveryFor(t, analysisJob())

	fx.w.Handle(context.Background(), d)

	if !d.acked || d.nacked {
		t.Fatalf("transient store failure must requeue, not dead-letter: %+v", d)
	}
	if len(fx.pub.published) != 1 || fx.pub.published[0].RetryCount != 1 {
		t.Fatalf("republish: %+v", fx.pub.published)
	}
	if fx.analyzer.calls != 0 {
		t.Fatalf("model must not be called when the transition fails")
	}
	if fx.analyses.rows["a1"].State == model.AnalysisFailed {
		t.Fatalf("analysis must not fail on first delivery")
	}
}

func TestHandle_ProcessingTransitionFailureExhaustedDeadLetters(t *testing.T) {
	fx := newWorkerFixture(t, "a1")
	fx.analyses.markErr = errors.New("store down")
	job := analysisJob()
	job.RetryCount = MaxRetries
	d := deliveryFor(t, job)

	fx.w.Handle(context.Background(), d)

	if !d.nacked || d.requeue {
		t.Fatalf("exhausted job must nack without requeue: %+v", d)
	}
	if len(fx.pub.published) != 0 {
		t.Fatalf("no republish on exhausted budget")
	}
	a := fx.analyses.rows["a1"]
	if a.State != model.AnalysisFailed {
		t.Fatalf("analysis row: %+v", a)
	}
}

func TestHandle_ExhaustedRetriesDeadLetter(t *testing.T) {
	fx := newWorkerFixture(t, "a1")
	fx.analyzer.err = model.ErrPermanentUpstream
	job := analysisJob()
	job.RetryCount = MaxRetries
	fx.mr.Set(fingerprint.LockKey(job.ContentHash), "1")
	d := deliveryFor(t, job)

	fx.w.Handle(context.Background(), d)

	if !d.nacked || d.requeue {
		t.Fatalf("exhausted job must nack without requeue: %+v", d)
	}
	if len(fx.pub.published) != 0 {
		t.Fatalf("no republish on exhausted budget")
	}
	a := fx.analyses.rows["a1"]
	if a.State != model.AnalysisFailed || a.FailureReason == "" {
		t.Fatalf("analysis row: %+v", a)
	}
	if len(fx.emitter.events) != 1 {
		t.Fatalf("events: %+v", fx.emitter.events)
	}
	ev := fx.emitter.events[0]
	if ev.room != "user:u1" || ev.event != model.EventAnalysisFailed {
		t.Fatalf("failure event routing: %+v", ev)
	}
	if fx.mr.Exists(fingerprint.LockKey(job.ContentHash)) {
		t.Fatalf("lock must be released on terminal failure")
	}
}

func TestHandle_MalformedJobAcked(t *testing.T) {
	fx := newWorkerFixture(t)
	d := &fakeDelivery{body: []byte("{not json")}

	fx.w.Handle(context.Background(), d)

	if !d.acked || d.nacked {
		t.Fatalf("malformed job must be dropped via ack: %+v", d)
	}
	if fx.analyzer.calls != 0 || len(fx.emitter.events) != 0 {
		t.Fatalf("malformed job must touch nothing")
	}
}

func TestHandle_DiffPath(t *testing.T) {
	fx := newWorkerFixture(t)
	fx.analyzer.diff = &model.DiffExplanation{
		Summary:         "Payment terms changed",
		ChangesAnalysis: "Net-30 to Net-60",
		NewRisks:        []string{"cashflow"},
		Recommendation:  "negotiate",
	}
	d := deliveryFor(t, model.AnalysisJob{
		JobID: "j2", Type: model.JobTypeDiff, ContractID: "c1", TenantID: "t1", UserID: "u1",
		ContractTitle: "MSA", DiffText: "- Net-30\n+ Net-60", VersionA: 1, VersionB: 2,
	})

	fx.w.Handle(context.Background(), d)

	if !d.acked {
		t.Fatalf("diff job must ack")
	}
	if len(fx.emitter.events) != 1 {
		t.Fatalf("events: %+v", fx.emitter.events)
	}
	ev := fx.emitter.events[0]
	if ev.room != "user:u1" || ev.event != model.EventDiffComplete {
		t.Fatalf("diff event routing: %+v", ev)
	}
	payload := ev.payload.(model.DiffCompletePayload)
	if payload.VersionA != 1 || payload.VersionB != 2 || payload.Summary != "Payment terms changed" {
		t.Fatalf("diff payload: %+v", payload)
	}
	if fx.contracts.outcomeCalls != 0 {
		t.Fatalf("diff path must not touch the contract")
	}
}

func TestHandle_DiffFailureDeadLetters(t *testing.T) {
	fx := newWorkerFixture(t)
	fx.analyzer.err = errors.New("provider down")
	d := deliveryFor(t, model.AnalysisJob{Type: model.JobTypeDiff, ContractID: "c1", UserID: "u1"})

	fx.w.Handle(context.Background(), d)

	if !d.nacked || d.requeue {
		t.Fatalf("failed diff must nack without requeue: %+v", d)
	}
	if len(fx.emitter.events) != 0 {
		t.Fatalf("no event on diff failure")
	}
}
