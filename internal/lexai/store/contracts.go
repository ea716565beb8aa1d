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

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// MongoContracts implements ContractStore over the contracts collection.
type MongoContracts struct {
	coll *mongo.Collection
}

var _ ContractStore = (*MongoContracts)(nil)

func (s *MongoContracts) Create(ctx context.Context, c *model.Contract) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if len(c.AlertDays) == 0 {
		c.AlertDays = append([]int(nil), model.DefaultAlertDays...)
	}
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert contract %s: %w", c.ID, err)
	}
	return nil
}

func (s *MongoContracts) Get(ctx context.Context, tenantID, contractID string) (*model.Contract, error) {
	filter := bson.M{"_id": contractID, "tenantId": tenantID, "deleted": false}
	var c model.Contract
	err := s.coll.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("contract %s: %w", contractID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load contract %s: %w", contractID, err)
	}
	return &c, nil
}

func (s *MongoContracts) AppendVersion(ctx context.Context, tenantID, contractID, body, fp string) (*model.Contract, error) {
	cur, err := s.Get(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}
	next := model.ContractVersion{
		Version:     cur.CurrentVersion() + 1,
		Body:        body,
		Fingerprint: fp,
		CreatedAt:   time.Now().UTC(),
	}
	// Conditional on the version count we read, so a concurrent append
	// cannot assign the same number twice.
	filter := bson.M{
		"_id": contractID, "tenantId": tenantID, "deleted": false,
		"versions": bson.M{"$size": len(cur.Versions)},
	}
	update := bson.M{
		"$push": bson.M{"versions": next},
		"$set":  bson.M{"body": body, "fingerprint": fp, "updatedAt": next.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated model.Contract
	err = s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("append version to %s: concurrent modification", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("append version to %s: %w", contractID, err)
	}
	return &updated, nil
}

func (s *MongoContracts) ApplyAnalysisOutcome(ctx context.Context, contractID string, dates model.ContractDates, parties []string) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if dates.Effective != nil {
		set["dates.effective"] = dates.Effective
	}
	if dates.Expiry != nil {
		set["dates.expiry"] = dates.Expiry
	}
	if dates.Renewal != nil {
		set["dates.renewal"] = dates.Renewal
	}
	if len(parties) > 0 {
		set["parties"] = parties
	}
	if len(set) == 1 {
		// Nothing extractable came back; leave the contract untouched.
		return nil
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": contractID}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("apply analysis outcome to %s: %w", contractID, err)
	}
	return nil
}

func (s *MongoContracts) AppendAlertRecord(ctx context.Context, contractID string, threshold int, firedAt time.Time) (bool, error) {
	// Push conditional on the threshold's absence. If another scheduler
	// run got there first, ModifiedCount is 0 and the caller skips the
	// alert, which is the at-most-once guarantee.
	filter := bson.M{
		"_id":                  contractID,
		"alertsSent.threshold": bson.M{"$ne": threshold},
	}
	update := bson.M{"$push": bson.M{"alertsSent": model.AlertRecord{Threshold: threshold, FiredAt: firedAt.UTC()}}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("append alert record to %s: %w", contractID, err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoContracts) ListExpiring(ctx context.Context) ([]model.Contract, error) {
	filter := bson.M{"deleted": false, "dates.expiry": bson.M{"$ne": nil}}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list expiring contracts: %w", err)
	}
	defer cur.Close(ctx)
	var out []model.Contract
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode expiring contracts: %w", err)
	}
	return out, nil
}

func (s *MongoContracts) SoftDelete(ctx context.Context, tenantID, contractID string) error {
	filter := bson.M{"_id": contractID, "tenantId": tenantID, "deleted": false}
	update := bson.M{"$set": bson.M{"deleted": true, "updatedAt": time.Now().UTC()}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", contractID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("contract %s: %w", contractID, model.ErrNotFound)
	}
	return nil
}
