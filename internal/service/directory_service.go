package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/identity"
	"github.com/vedran77/pulsechat/internal/repository"
)

const (
	DefaultDirectoryLimit = 20
	MaxDirectoryLimit     = 100
)

type DirectoryService struct {
	userRepo repository.UserRepository
}

func NewDirectoryService(userRepo repository.UserRepository) *DirectoryService {
	return &DirectoryService{userRepo: userRepo}
}

// List returns other users, most recently active first.
func (s *DirectoryService) List(ctx context.Context, callerID string, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > MaxDirectoryLimit {
		limit = DefaultDirectoryLimit
	}

	users, err := s.userRepo.ListRecent(ctx, callerID, limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (s *DirectoryService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile stores the display name chosen at login and the avatar.
// Blank values fall back to the identifier and its default avatar.
func (s *DirectoryService) UpdateProfile(ctx context.Context, id, name, image string) (*domain.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	if image == "" {
		image = identity.AvatarURL(id)
	}

	if err := s.userRepo.UpdateProfile(ctx, id, name, image); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return s.Get(ctx, id)
}
