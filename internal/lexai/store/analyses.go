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

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// MongoAnalyses implements AnalysisStore over the analyses collection.
type MongoAnalyses struct {
	coll *mongo.Collection
}

var _ AnalysisStore = (*MongoAnalyses)(nil)

func (s *MongoAnalyses) Create(ctx context.Context, a *model.Analysis) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert analysis %s: %w", a.ID, err)
	}
	return nil
}

func (s *MongoAnalyses) Get(ctx context.Context, tenantID, analysisID string) (*model.Analysis, error) {
	var a model.Analysis
	err := s.coll.FindOne(ctx, bson.M{"_id": analysisID, "tenantId": tenantID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("analysis %s: %w", analysisID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis %s: %w", analysisID, err)
	}
	return &a, nil
}

func (s *MongoAnalyses) FindInFlight(ctx context.Context, contractID string, version int) (*model.Analysis, error) {
	filter := bson.M{
		"contractId": contractID,
		"version":    version,
		"state":      bson.M{"$in": []model.AnalysisState{model.AnalysisPending, model.AnalysisProcessing}},
	}
	var a model.Analysis
	err := s.coll.FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find in-flight analysis for %s v%d: %w", contractID, version, err)
	}
	return &a, nil
}

func (s *MongoAnalyses) MarkProcessing(ctx context.Context, analysisID string) error {
	update := bson.M{"$set": bson.M{"state": model.AnalysisProcessing, "updatedAt": time.Now().UTC()}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": analysisID}, update); err != nil {
		return fmt.Errorf("mark analysis %s processing: %w", analysisID, err)
	}
	return nil
}

func (s *MongoAnalyses) RecordRetry(ctx context.Context, analysisID string, retryCount int) error {
	update := bson.M{"$set": bson.M{
		"state":      model.AnalysisPending,
		"retryCount": retryCount,
		"updatedAt":  time.Now().UTC(),
	}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": analysisID}, update); err != nil {
		return fmt.Errorf("record retry for analysis %s: %w", analysisID, err)
	}
	return nil
}

func (s *MongoAnalyses) Complete(ctx context.Context, analysisID string, res *model.AnalysisResult, aiModel string, tokensUsed int, processingTimeMs int64) error {
	update := bson.M{"$set": bson.M{
		"state":            model.AnalysisCompleted,
		"result":           res,
		"aiModel":          aiModel,
		"tokensUsed":       tokensUsed,
		"processingTimeMs": processingTimeMs,
		"updatedAt":        time.Now().UTC(),
	}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": analysisID}, update); err != nil {
		return fmt.Errorf("complete analysis %s: %w", analysisID, err)
	}
	return nil
}

func (s *MongoAnalyses) Fail(ctx context.Context, analysisID, reason string) error {
	update := bson.M{"$set": bson.M{
		"state":         model.AnalysisFailed,
		"failureReason": reason,
		"updatedAt":     time.Now().UTC(),
	}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": analysisID}, update); err != nil {
		return fmt.Errorf("fail analysis %s: %w", analysisID, err)
	}
	return nil
}

// MongoMembers implements MemberStore over the users collection.
type MongoMembers struct {
	coll *mongo.Collection
}

var _ MemberStore = (*MongoMembers)(nil)

func (s *MongoMembers) ListByTenant(ctx context.Context, tenantID string) ([]model.Member, error) {
	cur, err := s.coll.Find(ctx, bson.M{"tenantId": tenantID})
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", tenantID, err)
	}
	defer cur.Close(ctx)
	var out []model.Member
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode members of %s: %w", tenantID, err)
	}
	return out, nil
}
