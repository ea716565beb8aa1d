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

package ws

import (
	"encoding/json"
	"testing"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/auth"
)

func hubConn(h *Hub, userID string, buffer int) *conn {
	return &conn{
		hub:    h,
		claims: &auth.Claims{UserID: userID, TenantID: "t1"},
		send:   make(chan []byte, buffer),
		rooms:  make(map[string]struct{}),
	}
}

func TestHub_SlowClientDropDoesNotPanicLaterDispatches(t *testing.T) {
	h := NewHub()
	c := hubConn(h, "u1", 1)
	h.join(c, "org:t1")

	payload := json.RawMessage(`{}`)
	// First frame fills the buffer; the second overflows and must
	// unregister the conn before its channel closes.
	h.Dispatch("org:t1", "analysis:complete", payload)
	h.Dispatch("org:t1", "analysis:complete", payload)

	if h.RoomSize("org:t1") != 0 {
		t.Fatalf("slow client must leave the room on drop, size=%d", h.RoomSize("org:t1"))
	}
	// A dropped conn must be unreachable: this dispatch would panic with
	// a send on a closed channel if membership outlived the close.
	h.Dispatch("org:t1", "analysis:complete", payload)

	// Drain the buffered frame, then the channel must be closed.
	<-c.send
	if _, ok := <-c.send; ok {
		t.Fatalf("send channel must be closed after drop")
	}
}

func TestHub_UnregisterIsIdempotentAndBlocksRejoin(t *testing.T) {
	h := NewHub()
	c := hubConn(h, "u1", 1)
	h.join(c, "user:u1")
	h.join(c, "org:t1")

	h.unregister(c)
	h.unregister(c)

	if h.RoomSize("user:u1") != 0 || h.RoomSize("org:t1") != 0 {
		t.Fatalf("unregister must detach every room")
	}

	// A racing join command after the drop must not resurrect the conn,
	// otherwise a later Dispatch would hit the closed channel.
	h.join(c, "org:t1")
	if h.RoomSize("org:t1") != 0 {
		t.Fatalf("closed conn must not rejoin a room")
	}
	h.Dispatch("org:t1", "analysis:complete", json.RawMessage(`{}`))
}

func TestHub_DisconnectLeavesOtherMembersDeliverable(t *testing.T) {
	h := NewHub()
	slow := hubConn(h, "u1", 1)
	healthy := hubConn(h, "u2", 4)
	h.join(slow, "org:t1")
	h.join(healthy, "org:t1")

	payload := json.RawMessage(`{"riskScore":40}`)
	h.Dispatch("org:t1", "analysis:complete", payload)
	h.Dispatch("org:t1", "analysis:complete", payload)
	h.Dispatch("org:t1", "analysis:complete", payload)

	if h.RoomSize("org:t1") != 1 {
		t.Fatalf("only the slow client should have been dropped, size=%d", h.RoomSize("org:t1"))
	}
	for i := 0; i < 3; i++ {
		frame, ok := <-healthy.send
		if !ok {
			t.Fatalf("healthy client lost its channel at frame %d", i)
		}
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if env.Event != "analysis:complete" {
			t.Fatalf("frame %d event: %q", i, env.Event)
		}
	}
}
