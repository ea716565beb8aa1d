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

// Package main is the consumer process: analysis and alert queue
// consumers, the daily expiry scheduler, and the background mail
// dispatcher. It publishes outcomes to the event bus; it never serves
// client traffic.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/bus"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/config"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/kv"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/llm"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/mailer"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/queue"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/scheduler"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/store"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/telemetry"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/worker"
)

func main() {
	// 1. Configuration.
	cfg, err := config.ParseWorker(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("worker: configuration")
	}
	log.SetFormatter(&log.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Backends.
	kvClient := kv.Dial(cfg.RedisAddr)
	defer kvClient.Close()
	if err := kvClient.Ping(ctx); err != nil {
		log.WithError(err).Fatal("worker: redis unreachable")
	}

	mongo, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.WithError(err).Fatal("worker: mongo unreachable")
	}
	defer mongo.Close(context.Background())

	broker, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		log.WithError(err).Fatal("worker: broker unreachable")
	}
	defer broker.Close()

	if cfg.MetricsAddr != "" {
		telemetry.Serve(cfg.MetricsAddr)
	}

	// 3. Pipeline components. The mail sender is a placeholder transport:
	// deliveries are logged until a relay is configured.
	model := llm.New(llm.Config{
		BaseURL:       cfg.LLMBaseURL,
		APIKey:        cfg.LLMAPIKey,
		PrimaryModel:  cfg.LLMPrimaryModel,
		FallbackModel: cfg.LLMFallbackModel,
	})
	emitter := bus.NewPublisher(kvClient.Cmd())

	mail := mailer.NewDispatcher(mailer.SenderFunc(func(_ context.Context, msg mailer.Message) error {
		log.WithFields(log.Fields{"to": msg.To, "subject": msg.Subject}).Info("mail: delivered (log transport)")
		return nil
	}))
	mail.Start()

	analysisWorker := worker.NewAnalysisWorker(
		mongo.Analyses,
		mongo.Contracts,
		kv.NewCache(kvClient.Cmd(), 0),
		kv.NewLock(kvClient.Cmd()),
		model,
		broker,
		emitter,
	)
	alertWorker := worker.NewAlertWorker(mongo.Members, emitter, mail)
	expiry := scheduler.New(mongo.Contracts, broker)

	// 4. Run the consumer loops and the scheduler.
	var wg sync.WaitGroup
	for i := 0; i < cfg.Consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			broker.Consume(ctx, queue.QueueAnalysis, analysisWorker.Handle)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		broker.Consume(ctx, queue.QueueAlerts, alertWorker.Handle)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := expiry.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("worker: scheduler stopped")
		}
	}()
	log.WithField("consumers", cfg.Consumers).Info("worker: running")

	// 5. Wait for a signal, then drain. Cancelling ctx stops the consume
	// loops after their in-flight delivery settles; the mail dispatcher
	// drains its queue before Stop returns.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("worker: shutting down")

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn("worker: shutdown timeout, abandoning in-flight work")
	}
	mail.Stop()
	log.Info("worker: stopped")
}
