// Package queue wraps github.com/redis/go-redis/v9 with exactly the
// FIFO-list and pub/sub primitives spec.md §6 names: LPUSH/RPOP for the
// "orders" and "db" queues, PUBLISH/SUBSCRIBE for reply channels and
// market-data fan-out.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by RPop when the list has no element ready; the
// dispatcher treats it as "nothing to do this tick", not an error.
var ErrEmpty = errors.New("queue: empty")

// Backend is the subset of Client's behavior the dispatcher and event
// emitter depend on. Exists so tests can substitute an in-memory fake
// instead of dialing a real Redis instance.
type Backend interface {
	LPush(ctx context.Context, key, value string) error
	RPop(ctx context.Context, key string) (string, error)
	Publish(ctx context.Context, channel, msg string) error
}

// Client is a thin handle over a redis.Client scoped to the primitives
// this system uses. It does not expose the full go-redis API on
// purpose — every caller in this repository should go through here so
// the wire protocol stays the single source of truth for what's sent.
type Client struct {
	rdb *redis.Client
}

// New dials addr. The connection is lazy; redis.NewClient never blocks.
func New(addr string) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// LPush left-pushes value onto key.
func (c *Client) LPush(ctx context.Context, key, value string) error {
	return c.rdb.LPush(ctx, key, value).Err()
}

// RPop right-pops one element from key, returning ErrEmpty if the list
// was empty rather than surfacing redis.Nil to callers.
func (c *Client) RPop(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Publish publishes msg on channel.
func (c *Client) Publish(ctx context.Context, channel, msg string) error {
	return c.rdb.Publish(ctx, channel, msg).Err()
}

// Subscription is a live subscription to one or more channels.
type Subscription struct {
	ps *redis.PubSub
}

// Subscribe opens a subscription to channel. Callers must Close it.
func (c *Client) Subscribe(ctx context.Context, channel string) *Subscription {
	return &Subscription{ps: c.rdb.Subscribe(ctx, channel)}
}

// PSubscribe opens a pattern subscription, e.g. "trade.*".
func (c *Client) PSubscribe(ctx context.Context, pattern string) *Subscription {
	return &Subscription{ps: c.rdb.PSubscribe(ctx, pattern)}
}

// Next blocks until the next message arrives or ctx is cancelled.
func (s *Subscription) Next(ctx context.Context) (channel, payload string, err error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return "", "", err
	}
	return msg.Channel, msg.Payload, nil
}

// Unsubscribe cancels the subscription's channel(s) without closing the
// connection. The websocket fan-out worker does not use it; it calls
// Close when a channel's last subscriber leaves.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.ps.Unsubscribe(ctx)
}

// Close releases the subscription's connection back to the pool.
func (s *Subscription) Close() error {
	return s.ps.Close()
}

// WaitForReply blocks on sub for a single message, enforcing timeout.
// This is the gateway's subscribe-before-enqueue wait for exactly one
// reply on a pubsub_id channel.
func WaitForReply(ctx context.Context, sub *Subscription, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, payload, err := sub.Next(ctx)
	if err != nil {
		return "", err
	}
	return payload, nil
}
