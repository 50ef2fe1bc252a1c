package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/identity"
	"github.com/vedran77/pulsechat/pkg/validator"
)

const (
	DefaultUserLimit = 20
	unwatchTimeout   = 5 * time.Second
)

// ChannelView is an open direct channel together with its log at the time
// the view was taken.
type ChannelView struct {
	Channel  domain.Channel
	Peer     string
	Messages []domain.Message
}

type activeChannel struct {
	channel domain.Channel
	log     *messageLog

	// ready is closed once history is seeded or the open failed.
	ready chan struct{}
	err   error
}

// Session is one authenticated identity bound to one backend connection. It
// watches at most one channel at a time.
type Session struct {
	conn   Conn
	issuer TokenIssuer
	me     domain.User
	logger zerolog.Logger

	mu     sync.Mutex
	users  []domain.User
	active *activeChannel
	closed bool

	hooksMu    sync.RWMutex
	onMessage  func(domain.Message)
	onPresence func(domain.User)

	done chan struct{}
	wg   sync.WaitGroup
}

func newSession(conn Conn, issuer TokenIssuer, logger zerolog.Logger) *Session {
	s := &Session{
		conn:   conn,
		issuer: issuer,
		me:     conn.Me(),
		logger: logger,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

func (s *Session) Me() domain.User {
	return s.me
}

// OnMessage registers fn to run for every message added to the active log.
// fn runs on the log's consumer goroutine and must not block.
func (s *Session) OnMessage(fn func(domain.Message)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onMessage = fn
}

// OnPresence registers fn to run when a pushed presence change arrives.
func (s *Session) OnPresence(fn func(domain.User)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onPresence = fn
}

// ListUsers fetches other users, most recently active first, and replaces
// the local directory copy with the result.
func (s *Session) ListUsers(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = DefaultUserLimit
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	users, err := s.conn.QueryUsers(ctx, limit)
	if err != nil {
		return nil, classify(ErrTransport, "listing users", err)
	}

	users = lo.Filter(users, func(u domain.User, _ int) bool {
		return u.ID != s.me.ID
	})
	sortByLastActive(users)
	if len(users) > limit {
		users = users[:limit]
	}

	s.mu.Lock()
	s.users = append([]domain.User(nil), users...)
	s.mu.Unlock()

	return users, nil
}

// Users returns the local directory copy.
func (s *Session) Users() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.User(nil), s.users...)
}

// SearchUsers filters the local directory copy by a case-insensitive
// substring of the id or name.
func (s *Session) SearchUsers(query string) []domain.User {
	query = strings.ToLower(strings.TrimSpace(query))
	users := s.Users()
	if query == "" {
		return users
	}
	return lo.Filter(users, func(u domain.User, _ int) bool {
		return strings.Contains(u.ID, query) || strings.Contains(strings.ToLower(u.Name), query)
	})
}

// AddUser registers name with the token issuer and inserts the user into the
// local directory copy. Adding a user already present returns it unchanged.
func (s *Session) AddUser(ctx context.Context, name string) (domain.User, error) {
	if errs := validator.ValidateDisplayName(name); errs.HasErrors() {
		return domain.User{}, invalid(errs)
	}
	name = strings.TrimSpace(name)
	id := identity.Canonicalize(name)
	if id == s.me.ID {
		errs := make(validator.ValidationErrors)
		errs.Add("name", "You are already in the chat")
		return domain.User{}, invalid(errs)
	}
	if err := s.checkOpen(); err != nil {
		return domain.User{}, err
	}

	if existing, ok := s.findUser(id); ok {
		return existing, nil
	}

	if s.issuer != nil {
		if _, err := s.issuer.Token(ctx, id); err != nil {
			return domain.User{}, classify(ErrTransport, "registering "+id, err)
		}
	}

	user := domain.User{
		ID:    id,
		Name:  name,
		Image: identity.AvatarURL(id),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := lo.Find(s.users, func(u domain.User) bool { return u.ID == id }); !ok {
		s.users = append([]domain.User{user}, s.users...)
	}
	return user, nil
}

// RemoveUser drops id from the local directory copy only. It reports whether
// the user was present.
func (s *Session) RemoveUser(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.users)
	s.users = lo.Reject(s.users, func(u domain.User, _ int) bool {
		return u.ID == id
	})
	return len(s.users) != before
}

func (s *Session) findUser(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Find(s.users, func(u domain.User) bool { return u.ID == id })
}

// OpenDirectChannel resolves the channel shared with peerID, makes it the
// active channel and returns it once its history is in the log. The
// previously active channel is unwatched first. Opening the channel that is
// already active returns the current view without watching it again.
func (s *Session) OpenDirectChannel(ctx context.Context, peerID string) (*ChannelView, error) {
	if errs := validator.ValidateUserID("peer", peerID); errs.HasErrors() {
		return nil, invalid(errs)
	}
	if peerID == s.me.ID {
		errs := make(validator.ValidationErrors)
		errs.Add("peer", "Cannot start a conversation with yourself")
		return nil, invalid(errs)
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ch, err := s.conn.ResolveDirect(ctx, domain.SortMembers(s.me.ID, peerID))
	if err != nil {
		return nil, classify(ErrTransport, "resolving channel with "+peerID, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	if cur := s.active; cur != nil && cur.channel.ID == ch.ID {
		s.mu.Unlock()
		return s.awaitView(ctx, cur)
	}
	prev := s.active
	next := &activeChannel{
		channel: *ch,
		log:     newMessageLog(s.emitMessage),
		ready:   make(chan struct{}),
	}
	s.active = next
	s.mu.Unlock()

	if prev != nil {
		s.detach(ctx, prev)
	}

	history, err := s.conn.Watch(ctx, ch.ID)
	if err != nil {
		s.abandon(ctx, next, classify(ErrTransport, "watching channel "+ch.ID.String(), err))
		return nil, next.err
	}

	next.log.enqueue(history...)
	if err := next.log.flush(ctx); err != nil {
		s.abandon(ctx, next, err)
		return nil, err
	}

	s.mu.Lock()
	superseded := s.active != next
	s.mu.Unlock()
	if superseded {
		// Whoever replaced us may have unwatched before our subscribe landed.
		s.abandon(ctx, next, ErrChannelSuperseded)
		return nil, ErrChannelSuperseded
	}

	close(next.ready)
	s.logger.Debug().
		Stringer("channel_id", ch.ID).
		Int("history", len(history)).
		Msg("channel opened")
	return s.view(next), nil
}

// abandon gives up on an open that failed or was superseded.
func (s *Session) abandon(ctx context.Context, ac *activeChannel, err error) {
	ac.err = err
	close(ac.ready)
	ac.log.close()

	s.mu.Lock()
	if s.active == ac {
		s.active = nil
	}
	reopened := s.active != nil && s.active.channel.ID == ac.channel.ID
	s.mu.Unlock()

	if !reopened {
		s.unwatch(ctx, ac.channel.ID)
	}
}

func (s *Session) awaitView(ctx context.Context, ac *activeChannel) (*ChannelView, error) {
	select {
	case <-ac.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if ac.err != nil {
		return nil, ac.err
	}
	return s.view(ac), nil
}

func (s *Session) view(ac *activeChannel) *ChannelView {
	return &ChannelView{
		Channel:  ac.channel,
		Peer:     ac.channel.Other(s.me.ID),
		Messages: ac.log.snapshot(),
	}
}

// ActiveChannel returns the channel currently watched, if any.
func (s *Session) ActiveChannel() (domain.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return domain.Channel{}, false
	}
	return s.active.channel, true
}

// Messages returns a snapshot of the active channel's log.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	cur := s.active
	s.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.log.snapshot()
}

// Send posts text to the active channel. The stored message is added to the
// log before Send returns, whether or not the backend echoes it.
func (s *Session) Send(ctx context.Context, text string) (*domain.Message, error) {
	if errs := validator.ValidateMessage(text); errs.HasErrors() {
		return nil, invalid(errs)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	cur := s.active
	s.mu.Unlock()
	if cur == nil {
		return nil, ErrNoActiveChannel
	}

	msg, err := s.conn.Send(ctx, cur.channel.ID, text)
	if err != nil {
		return nil, classify(ErrTransport, "sending message", err)
	}

	if cur.log.enqueue(*msg) {
		if err := cur.log.flush(ctx); err != nil {
			return msg, fmt.Errorf("waiting for log: %w", err)
		}
	}
	return msg, nil
}

// CloseChannel stops watching the active channel. The unwatch is sent even
// if the channel never received a message.
func (s *Session) CloseChannel(ctx context.Context) {
	s.mu.Lock()
	cur := s.active
	s.active = nil
	s.mu.Unlock()

	if cur != nil {
		s.detach(ctx, cur)
	}
}

func (s *Session) detach(ctx context.Context, ac *activeChannel) {
	ac.log.close()
	s.unwatch(ctx, ac.channel.ID)
}

func (s *Session) unwatch(ctx context.Context, channelID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unwatchTimeout)
	defer cancel()

	if err := s.conn.Unwatch(ctx, channelID); err != nil {
		s.logger.Warn().Err(err).Stringer("channel_id", channelID).Msg("unwatch failed")
	}
}

// close detaches the active channel, closes the connection and waits for
// the dispatcher. The local directory copy is discarded.
func (s *Session) close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cur := s.active
	s.active = nil
	s.users = nil
	s.mu.Unlock()

	if cur != nil {
		s.detach(ctx, cur)
	}

	close(s.done)
	if err := s.conn.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("closing connection")
	}
	s.wg.Wait()
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	return nil
}

// dispatch is the single reader of the connection's event stream.
func (s *Session) dispatch() {
	defer s.wg.Done()

	events := s.conn.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(evt)
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleEvent(evt Event) {
	switch evt.Type {
	case EventMessageNew:
		if evt.Message == nil {
			return
		}
		s.mu.Lock()
		cur := s.active
		s.mu.Unlock()

		if cur == nil || cur.channel.ID != evt.ChannelID {
			s.logger.Debug().Stringer("channel_id", evt.ChannelID).Msg("dropping event for inactive channel")
			return
		}
		cur.log.enqueue(*evt.Message)

	case EventPresence:
		if evt.User == nil {
			return
		}
		s.applyPresence(*evt.User)

		s.hooksMu.RLock()
		fn := s.onPresence
		s.hooksMu.RUnlock()
		if fn != nil {
			fn(*evt.User)
		}
	}
}

// applyPresence updates the local copy of a user already known to it.
func (s *Session) applyPresence(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].ID != u.ID {
			continue
		}
		s.users[i].Online = u.Online
		s.users[i].LastActive = u.LastActive
		if u.Name != "" {
			s.users[i].Name = u.Name
		}
		if u.Image != "" {
			s.users[i].Image = u.Image
		}
		return
	}
}

func (s *Session) emitMessage(msg domain.Message) {
	s.hooksMu.RLock()
	fn := s.onMessage
	s.hooksMu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

// sortByLastActive orders users most recently active first. Users that
// were never active go last.
func sortByLastActive(users []domain.User) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i].LastActive, users[j].LastActive
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

// PresenceLabel is the status line shown for a chat partner.
func PresenceLabel(u domain.User) string {
	if u.Online {
		return "Online"
	}
	if u.LastActive != nil {
		return "Last active: " + u.LastActive.Local().Format("15:04")
	}
	return "Offline"
}
