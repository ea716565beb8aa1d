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
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	collContracts = "contracts"
	collAnalyses  = "analyses"
	collUsers     = "users"
	collAuditLogs = "auditlogs"
	collInvites   = "invitations"
	collNotifs    = "notifications"
)

// Mongo bundles the typed repositories over one database handle.
type Mongo struct {
	db        *mongo.Database
	Contracts *MongoContracts
	Analyses  *MongoAnalyses
	Members   *MongoMembers
}

// Connect dials the document store and pings it once so misconfiguration
// fails at startup rather than on the first request.
func Connect(ctx context.Context, uri, dbName string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return NewMongo(client.Database(dbName)), nil
}

// NewMongo wraps an existing database handle; used by Connect and tests.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		db:        db,
		Contracts: &MongoContracts{coll: db.Collection(collContracts)},
		Analyses:  &MongoAnalyses{coll: db.Collection(collAnalyses)},
		Members:   &MongoMembers{coll: db.Collection(collUsers)},
	}
}

// Ping is used by readiness probes.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

// EnsureIndexes declares every index the system relies on. All
// declarations are idempotent; startup calls this unconditionally.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	day := int32((24 * time.Hour).Seconds())

	type decl struct {
		coll   string
		models []mongo.IndexModel
	}
	decls := []decl{
		{collContracts, []mongo.IndexModel{
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "deleted", Value: 1}}},
			{Keys: bson.D{{Key: "dates.expiry", Value: 1}}},
			// Full-text search over title, tags, and body with the
			// weights the search endpoint expects.
			{
				Keys: bson.D{{Key: "title", Value: "text"}, {Key: "tags", Value: "text"}, {Key: "body", Value: "text"}},
				Options: options.Index().SetWeights(bson.D{
					{Key: "title", Value: 10}, {Key: "tags", Value: 5}, {Key: "body", Value: 1},
				}),
			},
		}},
		{collAnalyses, []mongo.IndexModel{
			{Keys: bson.D{{Key: "contractId", Value: 1}, {Key: "version", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "createdAt", Value: -1}}},
		}},
		{collAuditLogs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(90 * day)},
		}},
		{collInvites, []mongo.IndexModel{
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		}},
		{collNotifs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(30 * day)},
		}},
	}
	for _, d := range decls {
		if _, err := m.db.Collection(d.coll).Indexes().CreateMany(ctx, d.models); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", d.coll, err)
		}
	}
	return nil
}
