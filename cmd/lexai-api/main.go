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

// Package main is the front-end process: it serves the HTTP API and the
// WebSocket endpoint, runs the event bus subscriber that feeds the local
// hub, and owns no queue consumers. Scale it horizontally; the bus
// bridge delivers worker events to whichever instance holds the socket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/admission"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/api"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/auth"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/bus"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/config"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/kv"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/queue"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/store"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/telemetry"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/ws"
)

// brokerPinger adapts the queue client to the readiness probe surface.
type brokerPinger struct{ c *queue.Client }

func (p brokerPinger) Ping(context.Context) error { return p.c.Ping() }

func main() {
	// 1. Configuration. Flags win over LEXAI_* environment defaults.
	cfg, err := config.ParseAPI(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("api: configuration")
	}
	log.SetFormatter(&log.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Backends. Each connection failure is fatal at startup; a
	// half-connected API instance would pass traffic it cannot serve.
	kvClient := kv.Dial(cfg.RedisAddr)
	defer kvClient.Close()
	if err := kvClient.Ping(ctx); err != nil {
		log.WithError(err).Fatal("api: redis unreachable")
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	mongo, err := store.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
	connectCancel()
	if err != nil {
		log.WithError(err).Fatal("api: mongo unreachable")
	}
	defer mongo.Close(context.Background())
	if err := mongo.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Fatal("api: index bootstrap")
	}

	broker, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		log.WithError(err).Fatal("api: broker unreachable")
	}
	defer broker.Close()

	if cfg.MetricsAddr != "" {
		telemetry.Serve(cfg.MetricsAddr)
	}

	// 3. Assemble the request path: verifier, hub, bus subscriber,
	// admission service, HTTP server.
	verifier := auth.NewVerifier([]byte(cfg.JWTSecret), kv.NewRevocations(kvClient.Cmd()))
	hub := ws.NewHub()

	subscriber := bus.NewSubscriber(kvClient, hub)
	go func() {
		if err := subscriber.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Fatal("api: event bus subscriber died")
		}
	}()

	adm := admission.NewService(
		mongo.Contracts,
		mongo.Analyses,
		kv.NewCache(kvClient.Cmd(), 0),
		kv.NewLock(kvClient.Cmd()),
		kv.NewQuota(kvClient.Cmd(), nil),
		broker,
	)

	server := api.NewServer(adm, mongo.Contracts, mongo.Analyses, verifier,
		ws.NewHandler(hub, verifier),
		map[string]api.Pinger{
			"redis":  kvClient,
			"mongo":  mongo,
			"broker": brokerPinger{broker},
		})

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 4. Serve until a signal arrives.
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("api: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("api: listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("api: shutting down")

	// 5. Graceful shutdown: stop accepting, drain in-flight requests,
	// then tear down the subscriber and connections via the deferred
	// closes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("api: shutdown")
	}
	cancel()
	log.Info("api: stopped")
}
