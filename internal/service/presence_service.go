package service

import (
	"context"
	"time"

	"github.com/vedran77/pulsechat/internal/repository"
)

// PresenceService records when a user's event connection opens and closes.
type PresenceService struct {
	userRepo repository.UserRepository
	notifier Notifier
	now      func() time.Time
}

func NewPresenceService(userRepo repository.UserRepository) *PresenceService {
	return &PresenceService{userRepo: userRepo, now: time.Now}
}

func (s *PresenceService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *PresenceService) Connected(ctx context.Context, userID string) error {
	return s.set(ctx, userID, true)
}

func (s *PresenceService) Disconnected(ctx context.Context, userID string) error {
	return s.set(ctx, userID, false)
}

// Reset clears online flags left behind by a previous process. Call it
// before the hub accepts connections.
func (s *PresenceService) Reset(ctx context.Context) error {
	return s.userRepo.ResetPresence(ctx)
}

func (s *PresenceService) set(ctx context.Context, userID string, online bool) error {
	if err := s.userRepo.SetPresence(ctx, userID, online, s.now().UTC()); err != nil {
		return err
	}
	if s.notifier == nil {
		return nil
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return err
	}
	s.notifier.NotifyPresence(ctx, user)
	return nil
}
