package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/pkg/validator"
)

// Notifier broadcasts real-time events to connected clients.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, msg *domain.Message)
	NotifyPresence(ctx context.Context, user *domain.User)
}

type MessageService struct {
	channels *ChannelService
	notifier Notifier
	now      func() time.Time
}

func NewMessageService(channels *ChannelService) *MessageService {
	return &MessageService{
		channels: channels,
		now:      time.Now,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendMessageInput struct {
	Text string `json:"text"`
}

func (s *MessageService) Send(ctx context.Context, userID string, channelID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	if errs := validator.ValidateMessage(input.Text); errs.HasErrors() {
		return nil, errs
	}
	if _, err := s.channels.checkParticipant(ctx, userID, channelID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:        ulid.Make().String(),
		ChannelID: channelID,
		UserID:    userID,
		Text:      input.Text,
		// Postgres keeps microseconds; truncate so stored and echoed values match.
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.channels.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	metrics.MessagesSent.Inc()
	if s.notifier != nil {
		s.notifier.NotifyNewMessage(ctx, msg)
	}

	return msg, nil
}
