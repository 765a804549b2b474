package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	redisclient "github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/redis"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing events rather than blocking
// the fan-out for everyone else.
const subscriberBuffer = 100

type subscriberSet map[chan *entities.BatchEvent]struct{}

// RedisEventBus carries batch lifecycle events over Redis pub/sub. One
// Redis subscription is held per channel regardless of how many local
// subscribers are attached; events fan out in-process.
type RedisEventBus struct {
	client *redisclient.Client

	mu          sync.RWMutex
	pubsubs     map[string]*redis.PubSub
	subscribers map[string]subscriberSet

	// ctx outlives caller contexts; it ends only on Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisEventBus creates a new Redis-backed event bus.
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:      client,
		pubsubs:     make(map[string]*redis.PubSub),
		subscribers: make(map[string]subscriberSet),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Publish sends an event to every subscriber of the channel, local and
// remote.
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.BatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal batch event: %w", err)
	}
	if err := b.client.Client().Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish batch event: %w", err)
	}

	log.Debug().
		Str("channel", channel).
		Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Msg("published batch event")
	return nil
}

// Subscribe attaches a new subscriber to the channel. The returned channel
// is closed when ctx ends, on Unsubscribe, or when the bus closes.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.BatchEvent, error) {
	b.mu.Lock()
	if _, held := b.pubsubs[channel]; !held {
		pubsub := b.client.Client().Subscribe(b.ctx, channel)
		b.pubsubs[channel] = pubsub
		go b.fanOut(channel, pubsub)
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(subscriberSet)
	}
	events := make(chan *entities.BatchEvent, subscriberBuffer)
	b.subscribers[channel][events] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.detach(channel, events)
	}()

	return events, nil
}

// fanOut relays one channel's Redis messages to its local subscribers.
func (b *RedisEventBus) fanOut(channel string, pubsub *redis.PubSub) {
	defer b.closeChannel(channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			event := &entities.BatchEvent{}
			if err := json.Unmarshal([]byte(msg.Payload), event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("dropping malformed batch event")
				continue
			}

			b.mu.RLock()
			for subscriber := range b.subscribers[channel] {
				select {
				case subscriber <- event:
				default:
					log.Warn().
						Str("channel", channel).
						Str("event_id", event.ID).
						Msg("subscriber buffer full, event dropped")
				}
			}
			b.mu.RUnlock()
		}
	}
}

// detach removes a single subscriber, releasing the Redis subscription
// when it was the channel's last one.
func (b *RedisEventBus) detach(channel string, events chan *entities.BatchEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subscribers[channel]
	if _, ok := set[events]; !ok {
		return
	}
	delete(set, events)
	close(events)

	if len(set) == 0 {
		delete(b.subscribers, channel)
		if pubsub, held := b.pubsubs[channel]; held {
			_ = pubsub.Close()
			delete(b.pubsubs, channel)
		}
	}
}

// closeChannel tears down a channel's subscription and every local
// subscriber attached to it.
func (b *RedisEventBus) closeChannel(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)

	if pubsub, held := b.pubsubs[channel]; held {
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to close pubsub")
		}
		delete(b.pubsubs, channel)
	}
}

// Unsubscribe drops every subscriber from the channel.
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.closeChannel(channel)
	return nil
}

// Close shuts down the bus and every subscription.
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.RLock()
	channels := make([]string, 0, len(b.pubsubs))
	for channel := range b.pubsubs {
		channels = append(channels, channel)
	}
	b.mu.RUnlock()

	for _, channel := range channels {
		b.closeChannel(channel)
	}
	return nil
}
