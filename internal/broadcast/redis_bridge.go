package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

const (
	channelPrefix  = "livequiz:session:"
	publishTimeout = 5 * time.Second
)

// relayEnvelope wraps an event with the publishing instance's ID so an
// instance can drop its own messages coming back off the wire.
type relayEnvelope struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

// RedisBridge relays session events between instances over Redis pub/sub.
type RedisBridge struct {
	client   *redis.Client
	instance string
	log      zerolog.Logger
}

func NewRedisBridge(client *redis.Client, log zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client:   client,
		instance: uuid.NewString(),
		log:      log.With().Str("component", "redis_bridge").Logger(),
	}
}

// Publish sends the event to the session's Redis channel.
func (b *RedisBridge) Publish(sessionID string, event domain.Event) error {
	body, err := json.Marshal(relayEnvelope{Origin: b.instance, Event: event})
	if err != nil {
		return fmt.Errorf("marshal relay event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return b.client.Publish(ctx, channelPrefix+sessionID, body).Err()
}

// Subscribe listens on the session's Redis channel and invokes handler for
// events originating from other instances. The returned cancel stops the
// subscription.
func (b *RedisBridge) Subscribe(sessionID string, handler func(domain.Event)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, channelPrefix+sessionID)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn().Err(err).Str("session_id", sessionID).Msg("bad relay payload")
					continue
				}
				if env.Origin == b.instance {
					continue
				}
				handler(env.Event)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
