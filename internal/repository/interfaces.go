package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type UserRepository interface {
	// Upsert creates the user if absent and returns the stored record.
	// An existing record is left untouched.
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id, name, image string) error
	// ListRecent returns users ordered by last activity, most recent first.
	ListRecent(ctx context.Context, excludeID string, limit int) ([]domain.User, error)
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error
	// ResetPresence marks every user offline without touching last_active.
	ResetPresence(ctx context.Context) error
}

type ChannelRepository interface {
	// GetOrCreateDirect returns the single channel for the member pair,
	// creating it on first use. members must be sorted.
	GetOrCreateDirect(ctx context.Context, members [2]string) (*domain.Channel, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListByChannel returns up to limit messages older than before (if set),
	// in ascending creation order.
	ListByChannel(ctx context.Context, channelID uuid.UUID, before *string, limit int) ([]domain.Message, error)
}
