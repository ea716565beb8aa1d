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

// Package ws fans pipeline events out to connected browsers. The hub
// tracks local connections by room; cross-instance delivery arrives via
// the bus subscriber, which calls Dispatch on every API process. Rooms
// are plain strings: each socket auto-joins its user room, may opt into
// its own tenant's org room, and admins additionally join the admin
// room.
package ws

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
)

// envelope is the frame written to clients.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Hub indexes local connections by room name.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*conn]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*conn]struct{})}
}

// Dispatch sends one event to every local member of room. Slow clients
// are unregistered rather than allowed to stall the fan-out.
//
// Sends happen under the read lock; unregister closes the send channel
// under the write lock only after detaching the conn from every room.
// That ordering is what keeps Dispatch from ever reaching a closed
// channel.
func (h *Hub) Dispatch(room, event string, payload json.RawMessage) {
	frame, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		log.WithError(err).Error("ws: marshal frame")
		return
	}

	var slow []*conn
	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.WithFields(log.Fields{"user": c.claims.UserID, "room": room}).
			Warn("ws: dropping slow client")
		h.unregister(c)
	}
}

// RoomSize reports the local member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) join(c *conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c, room)
}

// unregister detaches the connection from every room, then closes its
// send channel. Idempotent; the hub is the only closer of send, and a
// closed conn can never rejoin a room.
func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for room := range c.rooms {
		h.detachLocked(c, room)
	}
	close(c.send)
}

func (h *Hub) detachLocked(c *conn, room string) {
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}
