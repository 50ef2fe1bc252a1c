package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(srv *fakeServer) *Manager {
	return NewManager(srv, srv, zerolog.Nop())
}

func TestLogin_EquivalentNamesShareIdentity(t *testing.T) {
	srv := newFakeServer()
	m := newTestManager(srv)
	ctx := context.Background()

	first, err := m.Login(ctx, Config{DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Me().ID)
	assert.Equal(t, "Alice", first.Me().Name)

	second, err := m.Login(ctx, Config{DisplayName: "alice "})
	require.NoError(t, err)
	assert.Equal(t, "alice", second.Me().ID)

	assert.Equal(t, []string{"alice", "alice"}, srv.tokenCalls)
	assert.Len(t, srv.users, 1)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name       string
		display    string
		tokenErr   error
		connectErr error
		wantKinds  []error
		wantTokens int
	}{
		{name: "empty name", display: "", wantKinds: []error{ErrAuth, ErrValidation}},
		{name: "whitespace name", display: "   ", wantKinds: []error{ErrAuth, ErrValidation}},
		{name: "issuer unreachable", display: "bob", tokenErr: errors.New("connection refused"), wantKinds: []error{ErrAuth}, wantTokens: 1},
		{name: "connect fails", display: "bob", connectErr: errors.New("dial tcp: refused"), wantKinds: []error{ErrTransport}, wantTokens: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer()
			srv.tokenErr = tt.tokenErr
			srv.connectErr = tt.connectErr
			m := newTestManager(srv)

			sess, err := m.Login(context.Background(), Config{DisplayName: tt.display})
			require.Error(t, err)
			assert.Nil(t, sess)
			for _, kind := range tt.wantKinds {
				assert.ErrorIs(t, err, kind)
			}
			assert.Len(t, srv.tokenCalls, tt.wantTokens)
			assert.Equal(t, StateDisconnected, m.State())

			_, ok := m.Config()
			assert.False(t, ok)
			_, err = m.Session()
			assert.ErrorIs(t, err, ErrNotConnected)
		})
	}
}

type emptyTokenIssuer struct{}

func (emptyTokenIssuer) Token(context.Context, string) (string, error) { return "", nil }

func TestLogin_EmptyTokenIsAuthError(t *testing.T) {
	srv := newFakeServer()
	m := NewManager(emptyTokenIssuer{}, srv, zerolog.Nop())

	_, err := m.Login(context.Background(), Config{DisplayName: "carol"})
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestConnect_RejectsBadToken(t *testing.T) {
	srv := newFakeServer()
	m := newTestManager(srv)
	ctx := context.Background()

	_, err := srv.Token(ctx, "dave")
	require.NoError(t, err)

	_, err = m.Connect(ctx, srv.users["dave"], "forged")
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, StateDisconnected, m.State())

	_, err = m.Connect(ctx, srv.users["dave"], "")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestConnect_ReplacesActiveSession(t *testing.T) {
	srv := newFakeServer()
	m := newTestManager(srv)
	ctx := context.Background()

	_, err := m.Login(ctx, Config{DisplayName: "alice"})
	require.NoError(t, err)
	require.Len(t, srv.conns, 1)

	_, err = m.Login(ctx, Config{DisplayName: "bob"})
	require.NoError(t, err)

	assert.True(t, srv.conns[0].isClosed())
	assert.False(t, srv.conns[1].isClosed())
	assert.Equal(t, StateConnected, m.State())

	sess, err := m.Session()
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Me().ID)

	cfg, ok := m.Config()
	require.True(t, ok)
	assert.Equal(t, "bob", cfg.DisplayName)
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	srv := newFakeServer()
	m := newTestManager(srv)
	ctx := context.Background()

	// Never connected.
	m.Disconnect(ctx)
	assert.Equal(t, StateDisconnected, m.State())

	sess, err := m.Login(ctx, Config{DisplayName: "alice"})
	require.NoError(t, err)
	srv.addUser("bob", srv.clock)
	_, err = sess.ListUsers(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Users())

	m.Disconnect(ctx)
	m.Disconnect(ctx)
	assert.Equal(t, StateDisconnected, m.State())
	assert.True(t, srv.conns[0].isClosed())
	assert.Empty(t, sess.Users())
	_, ok := m.Config()
	assert.False(t, ok)

	// Operations on a closed session fail cleanly.
	_, err = sess.ListUsers(ctx, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = sess.OpenDirectChannel(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotConnected)

	next, err := m.Login(ctx, Config{DisplayName: "alice"})
	require.NoError(t, err)
	assert.Empty(t, next.Users())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
}

func TestLogin_ConfigMatchesSessionUnderConcurrency(t *testing.T) {
	srv := newFakeServer()
	m := newTestManager(srv)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		for _, name := range []string{"Alice", "Bob"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				m.Login(ctx, Config{DisplayName: name})
			}(name)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Disconnect(ctx)
		}()
		wg.Wait()

		cfg, hasCfg := m.Config()
		sess, err := m.Session()
		if err != nil {
			require.False(t, hasCfg, "config left behind without a session")
			continue
		}
		require.True(t, hasCfg)
		require.Equal(t, sess.Me().Name, cfg.DisplayName)
	}
}
