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

package model

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds shared across package boundaries. Callers classify wrapped
// errors with errors.Is against these sentinels; the HTTP layer maps each
// kind to a stable machine-readable code.
var (
	// ErrValidation rejects caller-supplied data before admission.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers tenant-scoped resources that are missing or
	// soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrVersionNotFound rejects a requested contract version that the
	// contract does not carry.
	ErrVersionNotFound = errors.New("version not found")
	// ErrForbidden covers RBAC and plan-gate refusals.
	ErrForbidden = errors.New("forbidden")
	// ErrQuotaExceeded refuses admission when the monthly plan quota is
	// spent. Use AsQuotaExceeded to recover the reset instant.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrTransientUpstream marks a retriable upstream failure (LLM 429/5xx,
	// broker hiccup). Internal retry applies before it surfaces.
	ErrTransientUpstream = errors.New("transient upstream failure")
	// ErrPermanentUpstream marks an upstream failure that exhausted every
	// model and retry; the analysis enters state=failed.
	ErrPermanentUpstream = errors.New("permanent upstream failure")
	// ErrInfrastructure marks an unreachable store, queue, or pub/sub; the
	// caller is expected to retry the whole request.
	ErrInfrastructure = errors.New("infrastructure unavailable")
)

// QuotaExceededError carries the counter snapshot alongside the
// ErrQuotaExceeded kind so the HTTP layer can report usage and reset time.
type QuotaExceededError struct {
	Used     int64
	Limit    int64
	ResetsAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: used %d of %d, resets at %s",
		e.Used, e.Limit, e.ResetsAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// AsQuotaExceeded extracts the quota detail from an error chain, if present.
func AsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
