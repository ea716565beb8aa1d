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

package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/fingerprint"
)

// UnlimitedQuota marks plans without a monthly cap.
const UnlimitedQuota int64 = -1

// PlanLimit returns the monthly analysis allowance for a plan. Unknown
// plans fall back to the free allowance.
func PlanLimit(plan string) int64 {
	switch plan {
	case "enterprise":
		return UnlimitedQuota
	case "pro":
		return 50
	default:
		return 3
	}
}

// QuotaStatus is the admission-time view of a user's monthly counter.
type QuotaStatus struct {
	Used     int64
	Limit    int64
	Allowed  bool
	ResetsAt time.Time
}

// Quota tracks per (user, UTC calendar month) admission counters. The
// counter is created by the first atomic increment, which also sets its
// expiry to the end of the month; there is no create/expire race because
// the TTL is only set when the post-increment value is 1.
type Quota struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewQuota returns a quota accountant. The clock is injectable for tests;
// pass nil for time.Now.
func NewQuota(rdb redis.Cmdable, now func() time.Time) *Quota {
	if now == nil {
		now = time.Now
	}
	return &Quota{rdb: rdb, now: now}
}

// Check reads the current counter against the plan limit. Unbounded plans
// are allowed without touching storage.
func (q *Quota) Check(ctx context.Context, userID, plan string) (QuotaStatus, error) {
	now := q.now().UTC()
	status := QuotaStatus{Limit: PlanLimit(plan), ResetsAt: nextUTCMonth(now)}
	if status.Limit == UnlimitedQuota {
		status.Allowed = true
		return status, nil
	}
	raw, err := q.rdb.Get(ctx, fingerprint.QuotaKey(userID, now)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return status, fmt.Errorf("quota check %s: %w", userID, err)
	}
	if err == nil {
		used, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			return status, fmt.Errorf("quota counter %s is not an integer: %w", userID, convErr)
		}
		status.Used = used
	}
	status.Allowed = status.Used < status.Limit
	return status, nil
}

// Increment bumps the user's counter for the current month and returns
// the post-increment value. On first increment it sets the counter's TTL
// to the remainder of the UTC month.
func (q *Quota) Increment(ctx context.Context, userID string) (int64, error) {
	now := q.now().UTC()
	key := fingerprint.QuotaKey(userID, now)
	used, err := q.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("quota increment %s: %w", userID, err)
	}
	if used == 1 {
		if err := q.rdb.Expire(ctx, key, secondsUntilUTCNextMonth(now)).Err(); err != nil {
			return used, fmt.Errorf("quota expire %s: %w", userID, err)
		}
	}
	return used, nil
}

// nextUTCMonth returns the first instant of the month after t, in UTC.
func nextUTCMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// secondsUntilUTCNextMonth returns the remaining life of a counter
// created at t.
func secondsUntilUTCNextMonth(t time.Time) time.Duration {
	return nextUTCMonth(t).Sub(t.UTC())
}
