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
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/auth"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers send arbitrary origins; the bearer token is the actual
	// admission control.
	CheckOrigin: func(*http.Request) bool { return true },
}

// clientCommand is the only inbound frame shape: room membership changes.
type clientCommand struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type conn struct {
	ws     *websocket.Conn
	hub    *Hub
	claims *auth.Claims
	send   chan []byte

	// rooms and closed are guarded by hub.mu. Once closed is set the
	// send channel is closed and join becomes a no-op.
	rooms  map[string]struct{}
	closed bool
}

// Handler upgrades authenticated requests into hub connections.
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
}

// NewHandler builds the /ws endpoint handler.
func NewHandler(hub *Hub, verifier *auth.Verifier) *Handler {
	return &Handler{hub: hub, verifier: verifier}
}

// ServeHTTP authenticates the handshake, upgrades, auto-joins the user
// room (and the admin room for admins), then runs the read/write pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws: upgrade failed")
		return
	}

	c := &conn{
		ws:     ws,
		hub:    h.hub,
		claims: claims,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
	h.hub.join(c, model.UserRoom(claims.UserID))
	if claims.IsAdmin() {
		h.hub.join(c, model.AdminRoom)
	}
	log.WithFields(log.Fields{"user": claims.UserID, "tenant": claims.TenantID}).
		Info("ws: client connected")
	telemetry.ClientConnected()

	go c.writePump()
	c.readPump()
	telemetry.ClientDisconnected()
}

// bearerToken accepts the token from the Authorization header or, for
// browser WebSocket clients that cannot set headers, a query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// readPump consumes join/leave commands until the socket dies. It owns
// the read deadline: every pong pushes it out by pongWait.
func (c *conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
		log.WithField("user", c.claims.UserID).Info("ws: client disconnected")
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("user", c.claims.UserID).Warn("ws: read error")
			}
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *conn) handleCommand(cmd clientCommand) {
	switch cmd.Action {
	case "join":
		if !c.mayJoin(cmd.Room) {
			log.WithFields(log.Fields{"user": c.claims.UserID, "room": cmd.Room}).
				Warn("ws: join refused")
			return
		}
		c.hub.join(c, cmd.Room)
	case "leave":
		c.hub.leave(c, cmd.Room)
	}
}

// mayJoin enforces room authorization: a connection may join its own
// user room, its own tenant's org room, and (for admins) the admin room.
// Cross-tenant org rooms are refused.
func (c *conn) mayJoin(room string) bool {
	switch {
	case room == model.UserRoom(c.claims.UserID):
		return true
	case room == model.OrgRoom(c.claims.TenantID):
		return true
	case room == model.AdminRoom:
		return c.claims.IsAdmin()
	default:
		return false
	}
}

// writePump drains the send channel and keeps the connection alive with
// periodic pings. A closed send channel tells the peer to go away.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ http.Handler = (*Handler)(nil)
