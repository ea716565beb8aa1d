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

// Package mailer dispatches notification mail in the background. The
// transport itself is external; callers hand over a message and move
// on. Enqueue never blocks and never fails the caller: a full queue
// drops the message with a log line.
package mailer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Message is one outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender is the transport boundary (SMTP relay, provider API, ...).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

const (
	defaultQueueDepth = 256
	sendAttempts      = 3
	sendRetryDelay    = 2 * time.Second
	sendTimeout       = 10 * time.Second
)

// Dispatcher drains a bounded queue through the sender with a small
// per-message retry budget.
type Dispatcher struct {
	sender Sender
	queue  chan Message

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	// retryDelay is overridable in tests.
	retryDelay time.Duration
}

// NewDispatcher builds a dispatcher over the given transport.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		queue:      make(chan Message, defaultQueueDepth),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		retryDelay: sendRetryDelay,
	}
}

// Start launches the drain loop.
func (d *Dispatcher) Start() {
	go d.run()
	log.Info("mailer: dispatcher started")
}

// Stop drains in-flight work and returns once the loop exits.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
	log.Info("mailer: dispatcher stopped")
}

// Enqueue hands a message to the background loop. It never blocks; when
// the queue is full the message is dropped and logged.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		log.WithField("to", msg.To).Warn("mailer: queue full, dropping message")
	}
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.stopCh:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

// deliver tries the transport a few times, then gives up. Mail is
// best-effort by contract; the pipeline never depends on it.
func (d *Dispatcher) deliver(msg Message) {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err = d.sender.Send(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		log.WithError(err).WithFields(log.Fields{"to": msg.To, "attempt": attempt}).
			Warn("mailer: send failed")
		if attempt < sendAttempts {
			time.Sleep(d.retryDelay)
		}
	}
	log.WithField("to", msg.To).Error("mailer: giving up on message")
}
