// Package redis publishes blackboard events over Redis Pub/Sub, one channel
// per store, and lets other processes subscribe to them.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/blackboard/pkg/eventstream"
)

// Channel returns the Pub/Sub channel for a store's events.
func Channel(store string) string {
	return fmt.Sprintf("blackboard:%s:events", store)
}

// Publisher publishes events with PUBLISH. Delivery is at-most-once: events
// published while nobody is subscribed are lost.
type Publisher struct {
	rdb *goredis.Client
}

// NewPublisher creates a publisher connected with opts.
func NewPublisher(opts *goredis.Options) *Publisher {
	return &Publisher{rdb: goredis.NewClient(opts)}
}

// Ping verifies Redis connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Publish sends the event to its store's channel.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channel := Channel(event.Source.Store)
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

// Subscription delivers events published for one store.
type Subscription struct {
	events <-chan *eventstream.Event
	errors <-chan error
	cancel context.CancelFunc
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan *eventstream.Event { return s.events }

// Errors carries messages that could not be decoded.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close ends the subscription.
func (s *Subscription) Close() {
	s.cancel()
}

// Subscribe listens for events from store. The subscription is confirmed
// with Redis before Subscribe returns, so events published afterwards are
// delivered.
func (p *Publisher) Subscribe(ctx context.Context, store string) (*Subscription, error) {
	pubsub := p.rdb.Subscribe(ctx, Channel(store))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", Channel(store), err)
	}

	events := make(chan *eventstream.Event, 10)
	errs := make(chan error, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(events)
		defer close(errs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev eventstream.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errs <- fmt.Errorf("decode event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case events <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: events, errors: errs, cancel: cancel}, nil
}
