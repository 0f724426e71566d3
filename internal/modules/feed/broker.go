// README: Event brokers fanning ride lifecycle events out to live feed subscribers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rideshare/internal/logging"
	"rideshare/internal/modules/ride"
)

const subscriberBuffer = 16

// Broker is a ride.Publisher that subscribers can listen on. Slow subscribers miss events
// rather than block publishers.
type Broker interface {
	ride.Publisher
	// Subscribe returns a stream of events and a function that ends the subscription.
	Subscribe(ctx context.Context) (<-chan ride.Event, func(), error)
}

type MemoryBroker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan ride.Event
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[int]chan ride.Event)}
}

func (b *MemoryBroker) Publish(_ context.Context, e ride.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context) (<-chan ride.Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan ride.Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel, nil
}

// RedisBroker shares events between API instances over a Redis pub/sub channel.
type RedisBroker struct {
	redis   *redis.Client
	channel string
	log     *logrus.Entry
}

func NewRedisBroker(rdb *redis.Client, channel string) *RedisBroker {
	if channel == "" {
		channel = "rideshare:ride-events"
	}
	return &RedisBroker{redis: rdb, channel: channel, log: logging.Module(nil, "feed")}
}

func (b *RedisBroker) WithLogger(logger *logrus.Logger) *RedisBroker {
	b.log = logging.Module(logger, "feed")
	return b
}

func (b *RedisBroker) Publish(ctx context.Context, e ride.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return b.redis.Publish(ctx, b.channel, body).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan ride.Event, func(), error) {
	sub := b.redis.Subscribe(ctx, b.channel)
	// Wait for the subscription to be confirmed so no event published after return is lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan ride.Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var e ride.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.WithError(err).Warn("dropping malformed ride event")
				continue
			}
			select {
			case out <- e:
			default:
			}
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}
