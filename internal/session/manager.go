package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/identity"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns the single session of an application instance. Connect,
// Login and Disconnect are serialized; there is no automatic reconnect.
type Manager struct {
	issuer  TokenIssuer
	backend Backend
	logger  zerolog.Logger

	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   State
	cfg     *Config
	session *Session
}

func NewManager(issuer TokenIssuer, backend Backend, logger zerolog.Logger) *Manager {
	return &Manager{
		issuer:  issuer,
		backend: backend,
		logger:  logger,
	}
}

// Login turns a display name into a connected session: canonicalize, ask the
// issuer for a token, connect.
func (m *Manager) Login(ctx context.Context, cfg Config) (*Session, error) {
	if errs := validator.ValidateDisplayName(cfg.DisplayName); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrAuth, invalid(errs))
	}

	name := strings.TrimSpace(cfg.DisplayName)
	id := identity.Canonicalize(name)

	token, err := m.issuer.Token(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: requesting token for %s: %w", ErrAuth, id, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: issuer returned no token for %s", ErrAuth, id)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	m.cfg = &Config{DisplayName: name}
	m.mu.Unlock()

	sess, err := m.connect(ctx, domain.User{
		ID:    id,
		Name:  name,
		Image: identity.AvatarURL(id),
	}, token)
	if err != nil {
		m.mu.Lock()
		m.cfg = nil
		m.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

// Connect terminates any active session and opens a new one. On failure the
// manager is left disconnected.
func (m *Manager) Connect(ctx context.Context, user domain.User, token string) (*Session, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	return m.connect(ctx, user, token)
}

// connect requires m.lifecycle.
func (m *Manager) connect(ctx context.Context, user domain.User, token string) (*Session, error) {
	m.teardown(ctx)

	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrAuth)
	}
	if !identity.IsCanonical(user.ID) {
		return nil, fmt.Errorf("%w: %q is not a canonical user id", ErrAuth, user.ID)
	}

	m.setState(StateConnecting)
	conn, err := m.backend.Connect(ctx, user, token)
	if err != nil {
		m.setState(StateDisconnected)
		return nil, classify(ErrTransport, "connecting", err)
	}

	sess := newSession(conn, m.issuer, m.logger.With().Str("user_id", conn.Me().ID).Logger())

	m.mu.Lock()
	m.session = sess
	m.state = StateConnected
	m.mu.Unlock()

	m.logger.Info().Str("user_id", conn.Me().ID).Msg("session connected")
	return sess, nil
}

// Disconnect ends the session and forgets the login configuration. It is
// safe to call at any time, any number of times.
func (m *Manager) Disconnect(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.teardown(ctx)

	m.mu.Lock()
	m.cfg = nil
	m.mu.Unlock()
}

func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if sess != nil {
		sess.close(ctx)
		m.logger.Info().Str("user_id", sess.Me().ID).Msg("session disconnected")
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Session() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// Config returns the login configuration of the current session.
func (m *Manager) Config() (Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		return Config{}, false
	}
	return *m.cfg, true
}
