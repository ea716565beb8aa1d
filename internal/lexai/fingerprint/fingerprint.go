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

// Package fingerprint computes content fingerprints and derives the
// key-value store keys built from them. A fingerprint is the lowercase
// 64-hex SHA-256 of a body's UTF-8 bytes; it is stable across processes
// and restarts and serves as the content address for the result cache
// and the single-flight lock.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Hash returns the lowercase hex SHA-256 of the body's UTF-8 bytes.
func Hash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Key layout helpers (public for interoperability with other components).

// CacheKey addresses the result cache entry for a fingerprint.
func CacheKey(fp string) string { return "analysis:" + fp }

// LockKey addresses the single-flight lock for a fingerprint.
func LockKey(fp string) string { return "lock:analysis:" + fp }

// QuotaKey addresses the monthly quota counter for a user. The month is
// taken in UTC so counters roll over at the same instant everywhere.
func QuotaKey(userID string, at time.Time) string {
	return fmt.Sprintf("quota:%s:%s", userID, at.UTC().Format("2006-01"))
}

// RevocationKey addresses the revocation marker for a token JTI.
func RevocationKey(jti string) string { return "revoked:" + jti }
