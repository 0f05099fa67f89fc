package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Streams are capped so an idle consumer cannot grow them without bound;
// history beyond this is served by the transactions table, not the stream.
const maxStreamLen = 10000

// Publisher appends domain events to Redis Streams. Publishing happens after
// the ledger write committed, so callers log failures instead of propagating
// them.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"type":      eventType,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"payload":   payload,
		},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}
