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

// Package queue is the durable job queue client. Publishes are durable
// and persistent; consumers run at prefetch=1 with manual acknowledgement
// so each worker holds at most one unacknowledged message. Messages that
// are negatively acknowledged without requeue route through the
// dead-letter exchange to the DLQ for human inspection.
package queue

import (
	"context"
	"time"
)

// Broker topology. The analysis queue dead-letters into lexai.analysis.dlq
// via the lexai.dlx direct exchange; the alert queue has no DLQ, failed
// alert jobs are dropped deliberately to avoid spamming users.
const (
	ExchangeDLX      = "lexai.dlx"
	QueueAnalysis    = "lexai.analysis"
	QueueAnalysisDLQ = "lexai.analysis.dlq"
	QueueAlerts      = "lexai.alerts"

	dlxRoutingKey = "analysis.failed"
)

// Reconnection backoff bounds: 1s doubling up to 30s.
const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

// Publisher is the producer surface used by admission, the expiry
// scheduler, and the worker's in-band retry republish.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Delivery is one consumed message. Exactly one of Ack or Nack must be
// called; Nack with requeue=false dead-letters where a DLX is bound.
type Delivery interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// Handler processes a single delivery and settles it.
type Handler func(ctx context.Context, d Delivery)

// nextBackoff doubles the delay up to the cap.
func nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return reconnectBase
	}
	d *= 2
	if d > reconnectCap {
		return reconnectCap
	}
	return d
}
