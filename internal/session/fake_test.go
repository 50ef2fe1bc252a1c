package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/identity"
)

// fakeServer is an in-memory messaging backend shared by fake connections.
type fakeServer struct {
	mu       sync.Mutex
	users    map[string]domain.User
	channels map[[2]string]*domain.Channel
	messages map[uuid.UUID][]domain.Message
	conns    []*fakeConn
	clock    time.Time
	seq      int

	// echo controls whether a sender receives its own message.new event.
	echo bool

	tokenCalls []string
	tokenErr   error
	connectErr error

	// watchGate, when set, is called before Watch returns history.
	watchGate func(channelID uuid.UUID)
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		users:    make(map[string]domain.User),
		channels: make(map[[2]string]*domain.Channel),
		messages: make(map[uuid.UUID][]domain.Message),
		clock:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		echo:     true,
	}
}

func (s *fakeServer) Token(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokenCalls = append(s.tokenCalls, userID)
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = domain.User{ID: userID, Name: userID, Image: identity.AvatarURL(userID)}
	}
	return "token-" + userID, nil
}

func (s *fakeServer) Connect(_ context.Context, user domain.User, token string) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectErr != nil {
		return nil, s.connectErr
	}
	if token != "token-"+user.ID {
		return nil, fmt.Errorf("%w: bad token", ErrAuth)
	}

	stored := s.users[user.ID]
	stored.ID = user.ID
	stored.Name = user.Name
	stored.Image = user.Image
	stored.Online = true
	s.users[user.ID] = stored

	c := &fakeConn{
		server:  s,
		me:      stored,
		events:  make(chan Event, 64),
		watched: make(map[uuid.UUID]int),
	}
	s.conns = append(s.conns, c)
	return c, nil
}

func (s *fakeServer) addUser(id string, lastActive time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	la := lastActive
	s.users[id] = domain.User{ID: id, Name: id, LastActive: &la}
}

func (s *fakeServer) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeServer) nextID() string {
	s.seq++
	return fmt.Sprintf("m%04d", s.seq)
}

func (s *fakeServer) history(channelID uuid.UUID) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages[channelID]...)
}

// push delivers evt to every connection that watches channelID.
func (s *fakeServer) push(channelID uuid.UUID, evt Event, skip *fakeConn) {
	for _, c := range s.conns {
		if c == skip || c.closed {
			continue
		}
		if c.watched[channelID] > 0 {
			c.events <- evt
		}
	}
}

type fakeConn struct {
	server *fakeServer
	me     domain.User
	events chan Event

	// guarded by server.mu
	watched      map[uuid.UUID]int
	watchCalls   []uuid.UUID
	unwatchCalls []uuid.UUID
	sendCalls    int
	queryLimits  []int
	closed       bool
	sendErr      error
}

func (c *fakeConn) Me() domain.User { return c.me }

func (c *fakeConn) QueryUsers(_ context.Context, limit int) ([]domain.User, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()

	c.queryLimits = append(c.queryLimits, limit)
	var out []domain.User
	for _, u := range c.server.users {
		out = append(out, u)
	}
	// Unordered and including the caller on purpose.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeConn) ResolveDirect(_ context.Context, members [2]string) (*domain.Channel, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if members[0] > members[1] {
		return nil, errors.New("members not sorted")
	}
	if ch, ok := s.channels[members]; ok {
		cp := *ch
		return &cp, nil
	}
	ch := &domain.Channel{ID: uuid.New(), Type: domain.ChannelTypeMessaging, Members: members, CreatedAt: s.tick()}
	s.channels[members] = ch
	cp := *ch
	return &cp, nil
}

func (c *fakeConn) Watch(_ context.Context, channelID uuid.UUID) ([]domain.Message, error) {
	s := c.server
	s.mu.Lock()
	c.watchCalls = append(c.watchCalls, channelID)
	c.watched[channelID]++
	gate := s.watchGate
	s.mu.Unlock()

	if gate != nil {
		gate(channelID)
	}
	return s.history(channelID), nil
}

func (c *fakeConn) Unwatch(_ context.Context, channelID uuid.UUID) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.unwatchCalls = append(c.unwatchCalls, channelID)
	delete(c.watched, channelID)
	return nil
}

func (c *fakeConn) Send(_ context.Context, channelID uuid.UUID, text string) (*domain.Message, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	c.sendCalls++
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	msg := domain.Message{
		ID:        s.nextID(),
		ChannelID: channelID,
		UserID:    c.me.ID,
		Text:      text,
		CreatedAt: s.tick(),
	}
	s.messages[channelID] = append(s.messages[channelID], msg)

	var skip *fakeConn
	if !s.echo {
		skip = c
	}
	m := msg
	s.push(channelID, Event{Type: EventMessageNew, ChannelID: channelID, Message: &m}, skip)
	return &msg, nil
}

func (c *fakeConn) Events() <-chan Event { return c.events }

func (c *fakeConn) Close() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.closed
}

func (c *fakeConn) watchCount(channelID uuid.UUID) int {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	n := 0
	for _, id := range c.watchCalls {
		if id == channelID {
			n++
		}
	}
	return n
}

func (c *fakeConn) unwatched(channelID uuid.UUID) bool {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	for _, id := range c.unwatchCalls {
		if id == channelID {
			return true
		}
	}
	return false
}

func (c *fakeConn) inject(evt Event) {
	c.events <- evt
}
