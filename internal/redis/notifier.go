package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/carelink/booking-service/internal/booking"
)

// EventChannel is where booking transitions are published for the external
// notification dispatcher.
const EventChannel = "booking.events"

type pubSubNotifier struct {
	client  *redis.Client
	channel string
}

// NewPubSubNotifier returns a booking.Notifier that publishes events to a
// Redis channel. Delivery is fire-and-forget; the caller logs failures.
func NewPubSubNotifier(client *redis.Client) booking.Notifier {
	return &pubSubNotifier{client: client, channel: EventChannel}
}

func (n *pubSubNotifier) Publish(ctx context.Context, ev booking.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
