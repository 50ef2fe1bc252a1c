package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisEventsChannel = "pulsechat:events"

// Envelope is what travels over a Bus. A nil ChannelID means the event goes
// to every connected client.
type Envelope struct {
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	Event     *Event     `json:"event"`
}

// Bus fans events out to every server instance. Run blocks, handing each
// envelope to deliver, until ctx is done.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Run(ctx context.Context, deliver func(Envelope)) error
}

// LocalBus delivers within the process.
type LocalBus struct {
	ch chan Envelope
}

func NewLocalBus(size int) *LocalBus {
	return &LocalBus{ch: make(chan Envelope, size)}
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBus) Run(ctx context.Context, deliver func(Envelope)) error {
	for {
		select {
		case env := <-b.ch:
			deliver(env)
		case <-ctx.Done():
			return nil
		}
	}
}

// RedisBus shares one event stream between instances via Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisBus(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisBus{client: client, logger: logger}, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisEventsChannel, data).Err()
}

func (b *RedisBus) Run(ctx context.Context, deliver func(Envelope)) error {
	sub := b.client.Subscribe(ctx, redisEventsChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", redisEventsChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn().Err(err).Msg("ws bus: dropping malformed envelope")
				continue
			}
			deliver(env)
		case <-ctx.Done():
			return nil
		}
	}
}
