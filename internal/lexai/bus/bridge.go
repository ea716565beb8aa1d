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

// Package bus bridges worker outcomes to WebSocket rooms across API
// instances. The worker publishes {event, room, payload} records on a
// well-known pub/sub channel; every API instance runs one subscriber
// loop on a dedicated connection and hands inbound records to its local
// hub. Delivery is best-effort: a publish during a store outage is
// logged and dropped, and clients treat events as hints to pull the
// authoritative row.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/kv"
)

// Channel is the pub/sub channel carrying socket events.
const Channel = "lexai:socket:events"

// Message is the wire record on the channel.
type Message struct {
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Emitter is the worker-facing publish surface. Emit never returns an
// error: failures are logged and dropped by contract.
type Emitter interface {
	Emit(ctx context.Context, room, event string, payload any)
}

// Publisher emits events on the command connection.
type Publisher struct {
	rdb redis.Cmdable
}

var _ Emitter = (*Publisher)(nil)

// NewPublisher returns a fire-and-forget publisher.
func NewPublisher(rdb redis.Cmdable) *Publisher { return &Publisher{rdb: rdb} }

// Emit publishes one event record. Marshal or publish failures are
// logged and dropped.
func (p *Publisher) Emit(ctx context.Context, room, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"event": event, "room": room}).
			Error("bus: marshal event payload")
		return
	}
	msg, err := json.Marshal(Message{Event: event, Room: room, Payload: raw})
	if err != nil {
		log.WithError(err).Error("bus: marshal event record")
		return
	}
	if err := p.rdb.Publish(ctx, Channel, msg).Err(); err != nil {
		log.WithError(err).WithFields(log.Fields{"event": event, "room": room}).
			Warn("bus: publish dropped")
	}
}

// Dispatcher receives inbound bus messages; the WebSocket hub implements
// it with a local-room send.
type Dispatcher interface {
	Dispatch(room, event string, payload json.RawMessage)
}

// Subscriber is the API-side loop. It owns a dedicated subscription
// connection (the store cannot multiplex commands over it) and forwards
// every record to the dispatcher.
type Subscriber struct {
	client     *kv.Client
	dispatcher Dispatcher
}

// NewSubscriber wires a subscriber to a hub-like dispatcher.
func NewSubscriber(client *kv.Client, d Dispatcher) *Subscriber {
	return &Subscriber{client: client, dispatcher: d}
}

// Run blocks until ctx is cancelled, dispatching inbound messages.
// Malformed records are logged and skipped.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, Channel)
	defer pubsub.Close()

	// Fail early if the subscription could not be established.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("bus subscribe: %w", err)
	}
	log.WithField("channel", Channel).Info("bus: subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("bus: subscription closed")
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.WithError(err).Warn("bus: skipping malformed event record")
				continue
			}
			s.dispatcher.Dispatch(msg.Room, msg.Event, msg.Payload)
		}
	}
}
