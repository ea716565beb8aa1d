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

package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

var scanNow = time.Date(2026, 8, 25, 2, 0, 0, 0, time.UTC)

// fakeContracts implements the two methods the scheduler touches; the
// rest of the interface panics to catch accidental use.
type fakeContracts struct {
	contracts map[string]*model.Contract
}

func (f *fakeContracts) ListExpiring(_ context.Context) ([]model.Contract, error) {
	var out []model.Contract
	for _, c := range f.contracts {
		if !c.Deleted && c.Dates.Expiry != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeContracts) AppendAlertRecord(_ context.Context, id string, threshold int, firedAt time.Time) (bool, error) {
	c := f.contracts[id]
	if c.AlertFired(threshold) {
		return false, nil
	}
	c.AlertsSent = append(c.AlertsSent, model.AlertRecord{Threshold: threshold, FiredAt: firedAt})
	return true, nil
}

func (f *fakeContracts) Create(context.Context, *model.Contract) error { panic("not used") }
func (f *fakeContracts) Get(context.Context, string, string) (*model.Contract, error) {
	panic("not used")
}
func (f *fakeContracts) AppendVersion(context.Context, string, string, string, string) (*model.Contract, error) {
	panic("not used")
}
func (f *fakeContracts) ApplyAnalysisOutcome(context.Context, string, model.ContractDates, []string) error {
	panic("not used")
}
func (f *fakeContracts) SoftDelete(context.Context, string, string) error { panic("not used") }

type fakePublisher struct {
	jobs   []model.AlertJob
	queues []string
}

func (f *fakePublisher) Publish(_ context.Context, q string, body []byte) error {
	var job model.AlertJob
	if err := json.Unmarshal(body, &job); err != nil {
		return err
	}
	f.jobs = append(f.jobs, job)
	f.queues = append(f.queues, q)
	return nil
}

func expiringContract(id string, daysOut int, sent ...int) *model.Contract {
	expiry := scanNow.AddDate(0, 0, daysOut)
	c := &model.Contract{
		ID:        id,
		TenantID:  "t1",
		Title:     "MSA " + id,
		Dates:     model.ContractDates{Expiry: &expiry},
		AlertDays: model.DefaultAlertDays,
	}
	for _, thr := range sent {
		c.AlertsSent = append(c.AlertsSent, model.AlertRecord{Threshold: thr, FiredAt: scanNow.AddDate(0, 0, -10)})
	}
	return c
}

func newScheduler(contracts ...*model.Contract) (*Scheduler, *fakeContracts, *fakePublisher) {
	fc := &fakeContracts{contracts: map[string]*model.Contract{}}
	for _, c := range contracts {
		fc.contracts[c.ID] = c
	}
	pub := &fakePublisher{}
	s := New(fc, pub)
	s.now = func() time.Time { return scanNow }
	return s, fc, pub
}

func TestRunOnce_FiresUnsentThresholdOnly(t *testing.T) {
	// 7 days out, 90/60/30 already fired: exactly one job, threshold 7.
	s, fc, pub := newScheduler(expiringContract("c1", 7, 90, 60, 30))

	fired, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired != 1 || len(pub.jobs) != 1 {
		t.Fatalf("fired=%d jobs=%+v", fired, pub.jobs)
	}
	job := pub.jobs[0]
	if job.Threshold != 7 || job.DaysUntilExpiry != 7 || job.ContractID != "c1" {
		t.Fatalf("job: %+v", job)
	}
	if pub.queues[0] != "lexai.alerts" {
		t.Fatalf("queue: %q", pub.queues[0])
	}
	if !fc.contracts["c1"].AlertFired(7) {
		t.Fatalf("record not appended")
	}

	// Second run: nothing new.
	fired, err = s.RunOnce(context.Background())
	if err != nil || fired != 0 || len(pub.jobs) != 1 {
		t.Fatalf("rerun: fired=%d jobs=%d err=%v", fired, len(pub.jobs), err)
	}
}

func TestRunOnce_SkipsOutOfWindow(t *testing.T) {
	s, _, pub := newScheduler(
		expiringContract("past", -1),
		expiringContract("far", 91),
	)
	fired, err := s.RunOnce(context.Background())
	if err != nil || fired != 0 || len(pub.jobs) != 0 {
		t.Fatalf("fired=%d jobs=%+v err=%v", fired, pub.jobs, err)
	}
}

func TestRunOnce_ThresholdBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		daysOut int
		sent    []int
		want    []int // thresholds fired, in alertDays order
	}{
		{"exactly at threshold", 90, nil, []int{90}},
		{"just under threshold", 89, nil, []int{90}},
		{"window edge excluded", 91, nil, nil},
		{"same day", 0, []int{90, 60, 30}, []int{7}},
		{"multiple unsent fire together", 7, nil, []int{90, 60, 30, 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, pub := newScheduler(expiringContract("c1", tc.daysOut, tc.sent...))
			fired, err := s.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []int
			for _, j := range pub.jobs {
				got = append(got, j.Threshold)
			}
			if fired != len(tc.want) || len(got) != len(tc.want) {
				t.Fatalf("fired=%d got=%v want=%v", fired, got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("got=%v want=%v", got, tc.want)
				}
			}
		})
	}
}

func TestDaysUntil(t *testing.T) {
	cases := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"same instant", scanNow, 0},
		{"later same day", scanNow.Add(20 * time.Hour), 0},
		{"tomorrow early", scanNow.Add(23 * time.Hour), 1},
		{"seven days", scanNow.AddDate(0, 0, 7), 7},
		{"yesterday", scanNow.AddDate(0, 0, -1), -1},
	}
	for _, tc := range cases {
		if got := daysUntil(scanNow, tc.expiry); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestNextScanTime(t *testing.T) {
	before := time.Date(2026, 8, 25, 1, 59, 0, 0, time.UTC)
	if got := nextScanTime(before); !got.Equal(scanNow) {
		t.Fatalf("before scan hour: got %s", got)
	}
	after := time.Date(2026, 8, 25, 2, 0, 1, 0, time.UTC)
	if got := nextScanTime(after); !got.Equal(scanNow.AddDate(0, 0, 1)) {
		t.Fatalf("after scan hour: got %s", got)
	}
	at := scanNow
	if got := nextScanTime(at); !got.Equal(scanNow.AddDate(0, 0, 1)) {
		t.Fatalf("at scan hour: got %s", got)
	}
}
