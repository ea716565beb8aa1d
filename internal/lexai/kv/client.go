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

// Package kv wraps the key-value store behind the pipeline's four uses of
// it: the result cache, the single-flight lock, the monthly quota
// counters, and token revocation markers. It also exposes the pub/sub
// primitives used by the event bus bridge.
//
// The store requires two independent connections: a connection in
// subscribe mode cannot issue other commands, so the command path and the
// subscription path never share a client.
package kv

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// Client bundles the command connection and the dedicated subscription
// connection. Use Cmd for every stateless operation and Subscribe for the
// event bus subscriber loop.
type Client struct {
	cmd *redis.Client
	sub *redis.Client
}

// Dial connects both clients to the given address, e.g. "127.0.0.1:6379".
func Dial(addr string) *Client {
	return &Client{
		cmd: redis.NewClient(&redis.Options{Addr: addr}),
		sub: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Cmd returns the multiplexed command client.
func (c *Client) Cmd() *redis.Client { return c.cmd }

// Subscribe opens a subscription on the dedicated connection. The caller
// owns the returned PubSub and must Close it.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.sub.Subscribe(ctx, channels...)
}

// Publish sends a payload to a channel on the command connection.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.cmd.Publish(ctx, channel, payload).Err()
}

// Ping checks the command connection; used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.cmd.Ping(ctx).Err()
}

// Close releases both connections.
func (c *Client) Close() error {
	errCmd := c.cmd.Close()
	errSub := c.sub.Close()
	if errCmd != nil {
		return errCmd
	}
	return errSub
}
