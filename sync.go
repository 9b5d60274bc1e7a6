// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// sync.go — cross-process L1 invalidation over Redis pub/sub. Every write or
// delete publishes a message; every other process sharing the channel drops
// its in-memory copy of the affected keys.

package envelope

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AndrewDonelson/envelope/internal/l1"
	"github.com/AndrewDonelson/envelope/internal/l2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

const defaultInvalidationChannel = "envelope:invalidate"

// invalidationMsg is the Redis pub/sub payload for L1 invalidation.
type invalidationMsg struct {
	Origin string `json:"origin"`
	Op     string `json:"op"`  // "set" | "delete" | "delete_match"
	Key    string `json:"key"` // a key, or a pattern for delete_match
}

// invalidator publishes local changes and applies remote ones to L1.
type invalidator struct {
	origin    string
	channel   string
	l1        *l1.Store
	l2        *l2.Store
	logger    Logger
	stopCh    chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func newInvalidator(channel string, mem *l1.Store, redis *l2.Store, logger Logger) *invalidator {
	return &invalidator{
		// Messages carry the origin so a process ignores its own writes.
		origin:  ksuid.New().String(),
		channel: channel,
		l1:      mem,
		l2:      redis,
		logger:  logger,
		stopCh:  make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

func (iv *invalidator) start() {
	iv.wg.Add(1)
	go iv.subscribeLoop()
}

func (iv *invalidator) stop() {
	iv.stopOnce.Do(func() { close(iv.stopCh) })
	iv.wg.Wait()
}

// waitReady blocks until the first subscription is confirmed or d elapses.
func (iv *invalidator) waitReady(d time.Duration) bool {
	select {
	case <-iv.ready:
		return true
	case <-time.After(d):
		return false
	}
}

func (iv *invalidator) publish(ctx context.Context, op, key string) {
	b, _ := json.Marshal(invalidationMsg{Origin: iv.origin, Op: op, Key: key})
	if err := iv.l2.Publish(ctx, iv.channel, b); err != nil {
		iv.logger.Warn("envelope: invalidation publish failed", "op", op, "key", key, "err", err)
	}
}

// subscribeLoop keeps the subscription alive. Messages published while it
// was down are lost, so every resubscription after the first drops all of
// L1.
func (iv *invalidator) subscribeLoop() {
	defer iv.wg.Done()
	subscribed := false
	for {
		select {
		case <-iv.stopCh:
			return
		default:
		}
		ctx, cancel := context.WithCancel(context.Background())
		sub := iv.l2.Subscribe(ctx, iv.channel)
		func() {
			defer cancel()
			defer sub.Close()
			if _, err := sub.Receive(ctx); err != nil {
				iv.logger.Warn("envelope: invalidation subscribe failed", "channel", iv.channel, "err", err)
				return
			}
			if subscribed {
				iv.resync()
			}
			subscribed = true
			iv.readyOnce.Do(func() { close(iv.ready) })
			msgCh := sub.ChannelWithSubscriptions()
			for {
				select {
				case <-iv.stopCh:
					return
				case m, ok := <-msgCh:
					if !ok {
						return
					}
					switch m := m.(type) {
					case *redis.Subscription:
						// go-redis resubscribed after a dropped connection.
						if m.Kind == "subscribe" {
							iv.resync()
						}
					case *redis.Message:
						iv.handle(m.Payload)
					}
				}
			}
		}()
		select {
		case <-iv.stopCh:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (iv *invalidator) resync() {
	iv.logger.Info("envelope: invalidation resubscribed, flushing L1", "channel", iv.channel)
	iv.l1.Flush()
}

func (iv *invalidator) handle(payload string) {
	var msg invalidationMsg
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		iv.logger.Warn("envelope: malformed invalidation message", "payload", payload, "err", err)
		return
	}
	if msg.Origin == iv.origin {
		return
	}
	ctx := context.Background()
	switch msg.Op {
	case "set", "delete":
		_, _ = iv.l1.Delete(ctx, msg.Key)
	case "delete_match":
		_, _ = iv.l1.DeleteMatch(ctx, msg.Key)
	default:
		iv.logger.Debug("envelope: unknown invalidation op", "op", msg.Op)
	}
}
