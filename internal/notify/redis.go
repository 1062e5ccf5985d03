package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"eventbooking/internal/domain"
)

const (
	channelPrefix  = "occupancy:"
	publishTimeout = 5 * time.Second
)

// RedisBroadcaster is a Broadcaster for multi-instance deployments. Publishes
// go through Redis pub/sub so every instance sees every committed update; a
// local hub handles delivery to this instance's connections. Pub/sub is fire
// and forget, which matches the at-most-once, no-replay contract.
type RedisBroadcaster struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBroadcaster connects the subscription loop and returns the
// broadcaster. Close must be called to stop the loop.
func NewRedisBroadcaster(client *redis.Client, logger *slog.Logger) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBroadcaster{
		client: client,
		hub:    NewHub(),
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	pubsub := client.PSubscribe(ctx, channelPrefix+"*")
	go b.receive(ctx, pubsub)
	return b
}

// Register delegates to the local hub.
func (b *RedisBroadcaster) Register(connID string) (<-chan domain.Occupancy, func()) {
	return b.hub.Register(connID)
}

// Join delegates to the local hub.
func (b *RedisBroadcaster) Join(connID, eventID string) {
	b.hub.Join(connID, eventID)
}

// Leave delegates to the local hub.
func (b *RedisBroadcaster) Leave(connID, eventID string) {
	b.hub.Leave(connID, eventID)
}

// Publish sends the occupancy through Redis. Local delivery happens when the
// message comes back on the subscription, same as on every other instance.
func (b *RedisBroadcaster) Publish(eventID string, occ domain.Occupancy) {
	payload, err := json.Marshal(occ)
	if err != nil {
		b.logger.Error("marshal occupancy update", "event_id", eventID, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, channelPrefix+eventID, payload).Err(); err != nil {
		b.logger.Error("publish occupancy update", "event_id", eventID, "err", err)
	}
}

// Close stops the subscription loop and drops all local connections.
func (b *RedisBroadcaster) Close() error {
	b.cancel()
	<-b.done
	return b.hub.Close()
}

func (b *RedisBroadcaster) receive(ctx context.Context, pubsub *redis.PubSub) {
	defer close(b.done)
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
			eventID := strings.TrimPrefix(msg.Channel, channelPrefix)
			var occ domain.Occupancy
			if err := json.Unmarshal([]byte(msg.Payload), &occ); err != nil {
				b.logger.Warn("drop malformed occupancy message", "channel", msg.Channel, "err", err)
				continue
			}
			b.hub.Publish(eventID, occ)
		}
	}
}
