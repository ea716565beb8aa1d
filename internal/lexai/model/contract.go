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

// Package model holds the domain entities shared by the API and worker
// processes: contracts with their embedded versions, analyses, queue job
// payloads, outbound socket events, and the error kinds used across
// package boundaries.
package model

import "time"

// DefaultAlertDays are the expiry alert thresholds assigned to a contract
// on creation unless the caller overrides them.
var DefaultAlertDays = []int{90, 60, 30, 7}

// ContractVersion is one historical body of a contract. Versions are
// append-only; version numbers start at 1 and never repeat.
type ContractVersion struct {
	Version     int       `bson:"version" json:"version"`
	Body        string    `bson:"body" json:"body"`
	Fingerprint string    `bson:"fingerprint" json:"fingerprint"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// ContractDates are the AI-extracted milestone dates of a contract.
// Any of the three may be nil when the model could not determine it.
type ContractDates struct {
	Effective *time.Time `bson:"effective,omitempty" json:"effective,omitempty"`
	Expiry    *time.Time `bson:"expiry,omitempty" json:"expiry,omitempty"`
	Renewal   *time.Time `bson:"renewal,omitempty" json:"renewal,omitempty"`
}

// AlertRecord marks one fired expiry alert. The set of records on a
// contract is unique by Threshold; appends are conditional on absence.
type AlertRecord struct {
	Threshold int       `bson:"threshold" json:"threshold"`
	FiredAt   time.Time `bson:"firedAt" json:"firedAt"`
}

// Contract is a tenant-owned document. The current body always lives in
// Body with its fingerprint in Fingerprint; historical bodies live in
// Versions (which includes the current one as its last element).
// Contracts are soft-deleted, never removed.
type Contract struct {
	ID          string            `bson:"_id" json:"id"`
	TenantID    string            `bson:"tenantId" json:"tenantId"`
	Title       string            `bson:"title" json:"title"`
	Body        string            `bson:"body" json:"body"`
	Fingerprint string            `bson:"fingerprint" json:"fingerprint"`
	Versions    []ContractVersion `bson:"versions" json:"versions"`
	Parties     []string          `bson:"parties,omitempty" json:"parties,omitempty"`
	Dates       ContractDates     `bson:"dates" json:"dates"`
	AlertDays   []int             `bson:"alertDays" json:"alertDays"`
	AlertsSent  []AlertRecord     `bson:"alertsSent" json:"alertsSent"`
	Deleted     bool              `bson:"deleted" json:"deleted"`
	CreatedAt   time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// VersionByNumber returns the version entry with the given number, or nil.
func (c *Contract) VersionByNumber(n int) *ContractVersion {
	for i := range c.Versions {
		if c.Versions[i].Version == n {
			return &c.Versions[i]
		}
	}
	return nil
}

// CurrentVersion returns the number of the newest version, or 0 when the
// contract carries no versions (which should not happen after creation).
func (c *Contract) CurrentVersion() int {
	if len(c.Versions) == 0 {
		return 0
	}
	return c.Versions[len(c.Versions)-1].Version
}

// AlertFired reports whether an alert for the given threshold was already
// recorded on the contract.
func (c *Contract) AlertFired(threshold int) bool {
	for _, r := range c.AlertsSent {
		if r.Threshold == threshold {
			return true
		}
	}
	return false
}

// Member is a tenant member as resolved for alert delivery.
type Member struct {
	ID       string `bson:"_id" json:"id"`
	TenantID string `bson:"tenantId" json:"tenantId"`
	Email    string `bson:"email" json:"email"`
	Name     string `bson:"name" json:"name"`
	Plan     string `bson:"plan" json:"plan"`
	Role     string `bson:"role" json:"role"`
}
