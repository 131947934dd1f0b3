package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"anipink/pkg/logging"
)

const redisPublishTimeout = 2 * time.Second

// RedisBridge relays committed changes through a Redis channel so that
// every relay instance fans them out to its own subscribers. A single
// channel keeps commit order.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub

	mu     gosync.Mutex
	pubsub *redis.PubSub
	wg     gosync.WaitGroup
}

func NewRedisBridge(addr, password, channel string, hub *Hub) *RedisBridge {
	return &RedisBridge{
		client:  redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		channel: channel,
		hub:     hub,
	}
}

// Start subscribes and begins delivering remote changes to the hub. It
// returns once the subscription is confirmed.
func (b *RedisBridge) Start(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.pubsub = ps
	b.mu.Unlock()

	log := logging.Component("redis-bridge")
	log.Info().Str("channel", b.channel).Msg("subscribed")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ps.Channel() {
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("drop malformed change")
				continue
			}
			b.hub.Publish(ev)
		}
	}()
	return nil
}

// Publish implements Publisher. When Redis is unreachable the change is
// still delivered to this instance's subscribers.
func (b *RedisBridge) Publish(ev ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		log := logging.Component("redis-bridge")
		log.Warn().Err(err).Msg("publish failed, delivering locally")
		b.hub.Publish(ev)
	}
}

func (b *RedisBridge) Close() error {
	b.mu.Lock()
	ps := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
	b.wg.Wait()
	return b.client.Close()
}
