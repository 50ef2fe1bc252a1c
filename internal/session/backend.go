package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Config is what the user chose at login. It is set once by Login, read when
// the connection is made and cleared by Disconnect.
type Config struct {
	DisplayName string
}

// TokenIssuer is the trusted authority that registers an identifier on first
// use and signs a session token for it.
type TokenIssuer interface {
	Token(ctx context.Context, userID string) (string, error)
}

// Backend opens authenticated connections to a messaging backend.
type Backend interface {
	Connect(ctx context.Context, user domain.User, token string) (Conn, error)
}

// Conn is one live, authenticated backend connection.
type Conn interface {
	Me() domain.User
	QueryUsers(ctx context.Context, limit int) ([]domain.User, error)
	// ResolveDirect returns the one channel for the member pair, creating it
	// on first use.
	ResolveDirect(ctx context.Context, members [2]string) (*domain.Channel, error)
	// Watch subscribes to the channel's events and then returns its history.
	// Subscribing to an already watched channel must not duplicate delivery.
	Watch(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error)
	Unwatch(ctx context.Context, channelID uuid.UUID) error
	Send(ctx context.Context, channelID uuid.UUID, text string) (*domain.Message, error)
	// Events is closed when the connection goes away.
	Events() <-chan Event
	Close() error
}

type EventType string

const (
	EventMessageNew EventType = "message.new"
	EventPresence   EventType = "user.presence.changed"
)

// Event is a server push. Message is set for EventMessageNew and User for
// EventPresence.
type Event struct {
	Type      EventType
	ChannelID uuid.UUID
	Message   *domain.Message
	User      *domain.User
}
