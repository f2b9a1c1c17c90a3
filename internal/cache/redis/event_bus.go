package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/monarena/monarena/internal/domain"
)

// streamMaxLen is the approximate maximum length for the audit stream,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// auditStream holds an ordered, capped record of every published event so a
// dashboard that reconnects can backfill what Pub/Sub dropped.
const auditStream = "events:log"

// envelope is the wire format for every bus message.
type envelope struct {
	Event     string         `json:"event"`
	RoundID   uuid.UUID      `json:"round_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventBus implements domain.EventBus using Redis Pub/Sub for live fan-out
// and a Redis Stream for durable, ordered delivery.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

func eventChannel(event string) string {
	return "events:" + event
}

// Publish fans an event out on the per-event Pub/Sub channel and appends it
// to the capped audit stream.
func (eb *EventBus) Publish(ctx context.Context, event string, roundID uuid.UUID, data map[string]any) error {
	payload, err := json.Marshal(envelope{
		Event:     event,
		RoundID:   roundID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", event, err)
	}

	if err := eb.rdb.Publish(ctx, eventChannel(event), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", event, err)
	}

	args := &redis.XAddArgs{
		Stream: auditStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := eb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", event, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription for one event name and returns a
// read-only channel of raw payloads. The subscription closes with the
// context; the returned channel is closed at that point as well.
func (eb *EventBus) Subscribe(ctx context.Context, event string) (<-chan []byte, error) {
	pubsub := eb.rdb.Subscribe(ctx, eventChannel(event))

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", event, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
