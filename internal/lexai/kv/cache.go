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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/fingerprint"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// DefaultCacheTTL bounds the life of a result cache entry.
const DefaultCacheTTL = 24 * time.Hour

// Cache maps content fingerprints to compact analysis results. Entries
// are immutable once written and expire after TTL. Writers may race:
// identical inputs produce identical content, so last-write-wins is safe.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewCache returns a cache with the given TTL; ttl <= 0 selects the
// 24-hour default.
func NewCache(rdb redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get looks up the cached result for a fingerprint. A miss is not an
// error: it returns (nil, false, nil).
func (c *Cache) Get(ctx context.Context, fp string) (*model.CachedResult, bool, error) {
	raw, err := c.rdb.Get(ctx, fingerprint.CacheKey(fp)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", fp, err)
	}
	var res model.CachedResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten
		// by the next completed analysis.
		return nil, false, nil
	}
	return &res, true, nil
}

// Put stores the result under analysis:{fp} with the cache TTL.
func (c *Cache) Put(ctx context.Context, fp string, res *model.CachedResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", fp, err)
	}
	if err := c.rdb.Set(ctx, fingerprint.CacheKey(fp), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put %s: %w", fp, err)
	}
	return nil
}
