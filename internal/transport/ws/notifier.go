package ws

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
)

// BusNotifier implements service.Notifier by publishing to the Bus.
type BusNotifier struct {
	bus    Bus
	logger zerolog.Logger
}

func NewBusNotifier(bus Bus, logger zerolog.Logger) *BusNotifier {
	return &BusNotifier{bus: bus, logger: logger}
}

func (n *BusNotifier) NotifyNewMessage(ctx context.Context, msg *domain.Message) {
	channelID := msg.ChannelID
	evt, err := NewEvent(EventTypeMessageNew, &channelID, MessagePayload{Message: *msg})
	if err != nil {
		n.logger.Error().Err(err).Msg("ws notifier: marshal error")
		return
	}
	if err := n.bus.Publish(ctx, Envelope{ChannelID: &channelID, Event: evt}); err != nil {
		n.logger.Error().Err(err).Str("message_id", msg.ID).Msg("ws notifier: publish failed")
	}
}

func (n *BusNotifier) NotifyPresence(ctx context.Context, user *domain.User) {
	evt, err := NewEvent(EventTypePresence, nil, PresencePayload{User: *user})
	if err != nil {
		n.logger.Error().Err(err).Msg("ws notifier: marshal error")
		return
	}
	if err := n.bus.Publish(ctx, Envelope{Event: evt}); err != nil {
		n.logger.Error().Err(err).Str("user_id", user.ID).Msg("ws notifier: publish failed")
	}
}
