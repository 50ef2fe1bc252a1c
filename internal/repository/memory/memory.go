// Package memory implements the repositories in process memory. It backs
// development servers started without DATABASE_URL and the test suites.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]domain.User)}
}

func (r *UserRepo) Upsert(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		existing = *user
		r.users[user.ID] = existing
	}
	return &existing, nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepo) UpdateProfile(_ context.Context, id, name, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil
	}
	u.Name = name
	u.Image = image
	r.users[id] = u
	return nil
}

func (r *UserRepo) ListRecent(_ context.Context, excludeID string, limit int) ([]domain.User, error) {
	r.mu.RLock()
	users := make([]domain.User, 0, len(r.users))
	for id, u := range r.users {
		if id != excludeID {
			users = append(users, u)
		}
	}
	r.mu.RUnlock()

	// last_active DESC NULLS LAST, id
	sort.Slice(users, func(i, j int) bool {
		a, b := users[i].LastActive, users[j].LastActive
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return users[i].ID < users[j].ID
	})

	if limit >= 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *UserRepo) SetPresence(_ context.Context, id string, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil
	}
	u.Online = online
	u.LastActive = &at
	r.users[id] = u
	return nil
}

func (r *UserRepo) ResetPresence(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.users {
		u.Online = false
		r.users[id] = u
	}
	return nil
}

type ChannelRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]domain.Channel
	byMembers map[[2]string]uuid.UUID
}

func NewChannelRepo() *ChannelRepo {
	return &ChannelRepo{
		byID:      make(map[uuid.UUID]domain.Channel),
		byMembers: make(map[[2]string]uuid.UUID),
	}
}

func (r *ChannelRepo) GetOrCreateDirect(_ context.Context, members [2]string) (*domain.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byMembers[members]; ok {
		ch := r.byID[id]
		return &ch, nil
	}

	ch := domain.Channel{
		ID:        uuid.New(),
		Type:      domain.ChannelTypeMessaging,
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}
	r.byID[ch.ID] = ch
	r.byMembers[members] = ch.ID
	return &ch, nil
}

func (r *ChannelRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

type MessageRepo struct {
	mu       sync.RWMutex
	channels map[uuid.UUID][]domain.Message
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{channels: make(map[uuid.UUID][]domain.Message)}
}

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.channels[msg.ChannelID]
	i := sort.Search(len(log), func(i int) bool { return domain.Less(*msg, log[i]) })
	log = append(log, domain.Message{})
	copy(log[i+1:], log[i:])
	log[i] = *msg
	r.channels[msg.ChannelID] = log
	return nil
}

func (r *MessageRepo) ListByChannel(_ context.Context, channelID uuid.UUID, before *string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.channels[channelID]
	end := len(log)
	if before != nil {
		end = 0
		for i, m := range log {
			if m.ID == *before {
				end = i
				break
			}
		}
	}
	start := 0
	if limit >= 0 && end-limit > start {
		start = end - limit
	}

	out := make([]domain.Message, end-start)
	copy(out, log[start:end])
	return out, nil
}
