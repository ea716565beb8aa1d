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

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// Client is a supervised AMQP connection. The connection is re-dialled
// with exponential backoff after a broker outage, and the full topology
// (exchanges, queues, bindings) is re-declared before traffic resumes.
type Client struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel // publish channel

	closed chan struct{}
	once   sync.Once
}

var _ Publisher = (*Client)(nil)

// Dial connects to the broker and declares the topology. The initial
// connection must succeed; reconnection afterwards is automatic.
func Dial(url string) (*Client, error) {
	c := &Client{url: url, closed: make(chan struct{})}
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.supervise()
	return c, nil
}

// connect dials, opens the publish channel, and declares topology.
// Callers must not hold mu.
func (c *Client) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = conn.Close()
		return err
	}
	c.mu.Lock()
	c.conn, c.ch = conn, ch
	c.mu.Unlock()
	return nil
}

// declareTopology sets up the dead-letter exchange, the DLQ and its
// binding, and both work queues. Declarations are idempotent.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeDLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDLX, err)
	}
	if _, err := ch.QueueDeclare(QueueAnalysisDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueAnalysisDLQ, err)
	}
	if err := ch.QueueBind(QueueAnalysisDLQ, dlxRoutingKey, ExchangeDLX, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", QueueAnalysisDLQ, err)
	}
	if _, err := ch.QueueDeclare(QueueAnalysis, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLX,
		"x-dead-letter-routing-key": dlxRoutingKey,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueAnalysis, err)
	}
	if _, err := ch.QueueDeclare(QueueAlerts, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueAlerts, err)
	}
	return nil
}

// supervise re-dials after connection loss with 1s..30s backoff.
func (c *Client) supervise() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		errCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.closed:
			return
		case amqpErr := <-errCh:
			if amqpErr == nil {
				// Clean shutdown.
				return
			}
			log.WithError(amqpErr).Warn("queue: connection lost, reconnecting")
		}
		backoff := time.Duration(0)
		for {
			select {
			case <-c.closed:
				return
			default:
			}
			backoff = nextBackoff(backoff)
			time.Sleep(backoff)
			if err := c.connect(); err != nil {
				log.WithError(err).WithField("backoff", backoff).Warn("queue: reconnect failed")
				continue
			}
			log.Info("queue: reconnected")
			break
		}
	}
}

// Publish sends a durable, persistent JSON message to the named queue via
// the default exchange. Broker unavailability surfaces as a retriable
// infrastructure error; the caller decides whether to retry.
func (c *Client) Publish(ctx context.Context, queue string, body []byte) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("publish to %s: no channel: %w", queue, model.ErrInfrastructure)
	}
	err := ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %v: %w", queue, err, model.ErrInfrastructure)
	}
	return nil
}

// Ping reports broker liveness for readiness probes.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("queue: %w", model.ErrInfrastructure)
	}
	return nil
}

// Close shuts the connection down and stops the supervisor.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			err = c.conn.Close()
			c.conn, c.ch = nil, nil
		}
	})
	return err
}

// Consume runs a consumer loop on the named queue until ctx is cancelled.
// Each loop holds its own channel at prefetch=1 so a consumer never holds
// more than one unacknowledged message. After a channel or connection
// drop the loop waits out the reconnect backoff and resumes on a freshly
// declared topology.
func (c *Client) Consume(ctx context.Context, queue string, h Handler) {
	backoff := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		deliveries, ch, err := c.openConsumer(queue)
		if err != nil {
			backoff = nextBackoff(backoff)
			log.WithError(err).WithFields(log.Fields{"queue": queue, "backoff": backoff}).
				Warn("queue: consumer setup failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		c.drain(ctx, deliveries, h)
		_ = ch.Close()
	}
}

// drain dispatches deliveries until the channel closes or ctx ends.
func (c *Client) drain(ctx context.Context, deliveries <-chan amqp.Delivery, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			h(ctx, &amqpDelivery{d: d})
		}
	}
}

// openConsumer opens a dedicated channel with Qos(1) and starts consuming.
func (c *Client) openConsumer(queue string) (<-chan amqp.Delivery, *amqp.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, nil, fmt.Errorf("consume %s: connection down", queue)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("consume %s: channel: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume %s: qos: %w", queue, err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, ch, nil
}

// amqpDelivery adapts amqp091.Delivery to the Delivery interface.
type amqpDelivery struct {
	d amqp.Delivery
}

func (a *amqpDelivery) Body() []byte { return a.d.Body }
func (a *amqpDelivery) Ack() error   { return a.d.Ack(false) }
func (a *amqpDelivery) Nack(requeue bool) error {
	return a.d.Nack(false, requeue)
}
