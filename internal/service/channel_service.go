package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type ChannelService struct {
	channelRepo repository.ChannelRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
}

func NewChannelService(
	channelRepo repository.ChannelRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
) *ChannelService {
	return &ChannelService{
		channelRepo: channelRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// GetOrCreateDirect resolves the one direct channel between callerID and
// peerID. The result does not depend on argument order.
func (s *ChannelService) GetOrCreateDirect(ctx context.Context, callerID, peerID string) (*domain.Channel, error) {
	if callerID == peerID {
		return nil, ErrCannotDMSelf
	}

	peer, err := s.userRepo.GetByID(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, ErrUserNotFound
	}

	ch, err := s.channelRepo.GetOrCreateDirect(ctx, domain.SortMembers(callerID, peerID))
	if err != nil {
		return nil, fmt.Errorf("resolving direct channel: %w", err)
	}

	metrics.ChannelsResolved.Inc()
	return ch, nil
}

func (s *ChannelService) Get(ctx context.Context, callerID string, channelID uuid.UUID) (*domain.Channel, error) {
	return s.checkParticipant(ctx, callerID, channelID)
}

// ListMessages returns the newest page of history in ascending order.
func (s *ChannelService) ListMessages(ctx context.Context, callerID string, channelID uuid.UUID, before *string, limit int) (*MessageListResponse, error) {
	if _, err := s.checkParticipant(ctx, callerID, channelID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}

	messages, err := s.messageRepo.ListByChannel(ctx, channelID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

func (s *ChannelService) checkParticipant(ctx context.Context, userID string, channelID uuid.UUID) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	if !ch.Has(userID) {
		return nil, ErrNotParticipant
	}
	return ch, nil
}
