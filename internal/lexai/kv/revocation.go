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

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/fingerprint"
)

// Revocations is the per-JTI token blacklist. Markers carry a TTL equal
// to the token's residual life, so the set self-cleans once revoked
// tokens would have expired anyway.
type Revocations struct {
	rdb redis.Cmdable
}

// NewRevocations returns a revocation list over the command client.
func NewRevocations(rdb redis.Cmdable) *Revocations { return &Revocations{rdb: rdb} }

// Revoke blacklists a JTI until the token's natural expiry. A ttl <= 0
// means the token already expired and there is nothing to record.
func (r *Revocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, fingerprint.RevocationKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke %s: %w", jti, err)
	}
	return nil
}

// IsRevoked reports whether the JTI is blacklisted.
func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, fingerprint.RevocationKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation check %s: %w", jti, err)
	}
	return n > 0, nil
}
