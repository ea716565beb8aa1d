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
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Lock is the key-scoped cooperative single-flight lock. It suppresses
// duplicate LLM spend for the same fingerprint in the common case; it is
// not a correctness boundary. Holders must not assume they still hold the
// lock after its TTL elapses; the worker's cache recheck covers the
// window where two workers proceed for the same fingerprint.
type Lock struct {
	rdb redis.Cmdable
}

// NewLock returns a lock manager over the given command client.
func NewLock(rdb redis.Cmdable) *Lock { return &Lock{rdb: rdb} }

// Acquire creates key with the given TTL only if it is absent and reports
// whether this caller created it. Contention is not an error.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the key. It is best-effort: the lock self-releases via
// TTL if the holder crashed, so a failed delete is logged by the caller
// and otherwise ignored.
func (l *Lock) Release(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("lock release %s: %w", key, err)
	}
	return nil
}
