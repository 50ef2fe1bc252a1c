package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/identity"
	"github.com/vedran77/pulsechat/internal/repository/memory"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []domain.Message
	presence []domain.User
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, *msg)
}

func (n *recordingNotifier) NotifyPresence(_ context.Context, user *domain.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.presence = append(n.presence, *user)
}

type fixture struct {
	users     *memory.UserRepo
	tokens    *TokenService
	directory *DirectoryService
	channels  *ChannelService
	messages  *MessageService
	presence  *PresenceService
	notifier  *recordingNotifier
}

func newFixture() *fixture {
	users := memory.NewUserRepo()
	channels := NewChannelService(memory.NewChannelRepo(), memory.NewMessageRepo(), users)
	notifier := &recordingNotifier{}
	messages := NewMessageService(channels)
	messages.SetNotifier(notifier)
	presence := NewPresenceService(users)
	presence.SetNotifier(notifier)

	return &fixture{
		users:     users,
		tokens:    NewTokenService(users, "test-secret-0123456789", "pulsechat", time.Hour),
		directory: NewDirectoryService(users),
		channels:  channels,
		messages:  messages,
		presence:  presence,
		notifier:  notifier,
	}
}

func (f *fixture) register(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, _, err := f.tokens.Issue(context.Background(), name)
		require.NoError(t, err)
	}
}

func TestTokenService_EquivalentNamesShareUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tokenA, userA, err := f.tokens.Issue(ctx, "Alice")
	require.NoError(t, err)
	tokenB, userB, err := f.tokens.Issue(ctx, "alice ")
	require.NoError(t, err)

	require.Equal(t, "alice", userA.ID)
	require.Equal(t, userA.ID, userB.ID)
	require.Equal(t, identity.AvatarURL("alice"), userA.Image)

	subA, err := f.tokens.Verify(tokenA)
	require.NoError(t, err)
	subB, err := f.tokens.Verify(tokenB)
	require.NoError(t, err)
	require.Equal(t, subA, subB)
}

func TestTokenService_MissingUserID(t *testing.T) {
	f := newFixture()
	for _, in := range []string{"", "   "} {
		_, _, err := f.tokens.Issue(context.Background(), in)
		require.ErrorIs(t, err, ErrMissingUserID)
	}
}

func TestTokenService_VerifyRejects(t *testing.T) {
	f := newFixture()
	token, _, err := f.tokens.Issue(context.Background(), "alice")
	require.NoError(t, err)

	other := NewTokenService(f.users, "another-secret-0123456789", "pulsechat", time.Hour)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewTokenService(f.users, "test-secret-0123456789", "elsewhere", time.Hour)
	_, err = wrongIssuer.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	f.tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.tokens.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.tokens.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDirectoryService_ListExcludesCallerAndDefaultsLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice")
	for i := 0; i < 25; i++ {
		f.register(t, fmt.Sprintf("user-%02d", i))
	}

	users, err := f.directory.List(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, users, DefaultDirectoryLimit)
	for _, u := range users {
		require.NotEqual(t, "alice", u.ID)
	}

	few, err := f.directory.List(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, few, 3)
}

func TestDirectoryService_UpdateProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice")

	u, err := f.directory.UpdateProfile(ctx, "alice", "Alice Liddell", "")
	require.NoError(t, err)
	require.Equal(t, "Alice Liddell", u.Name)
	require.Equal(t, identity.AvatarURL("alice"), u.Image)

	_, err = f.directory.UpdateProfile(ctx, "nobody", "x", "")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestChannelService_GetOrCreateDirectIsSymmetric(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice", "bob")

	ab, err := f.channels.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	ba, err := f.channels.GetOrCreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	again, err := f.channels.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	require.Equal(t, ab.ID, ba.ID)
	require.Equal(t, ab.ID, again.ID)
	require.Equal(t, [2]string{"alice", "bob"}, ab.Members)
}

func TestChannelService_GetOrCreateDirectErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice")

	_, err := f.channels.GetOrCreateDirect(ctx, "alice", "alice")
	require.ErrorIs(t, err, ErrCannotDMSelf)

	_, err = f.channels.GetOrCreateDirect(ctx, "alice", "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestMessageService_SendAndList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice", "bob")

	ch, err := f.channels.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	sent, err := f.messages.Send(ctx, "bob", ch.ID, SendMessageInput{Text: "hello"})
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, "alice", ch.ID, SendMessageInput{Text: "hi bob"})
	require.NoError(t, err)

	resp, err := f.channels.ListMessages(ctx, "alice", ch.ID, nil, 0)
	require.NoError(t, err)
	require.False(t, resp.HasMore)
	require.Len(t, resp.Messages, 2)
	require.Equal(t, sent.ID, resp.Messages[0].ID)
	require.Equal(t, "bob", resp.Messages[0].UserID)
	require.Equal(t, "hello", resp.Messages[0].Text)
	require.True(t, domain.Less(resp.Messages[0], resp.Messages[1]))

	require.Len(t, f.notifier.messages, 2)
}

func TestMessageService_SendRejects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice", "bob", "carol")

	ch, err := f.channels.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.messages.Send(ctx, "alice", ch.ID, SendMessageInput{Text: "  "})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	_, err = f.messages.Send(ctx, "carol", ch.ID, SendMessageInput{Text: "let me in"})
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.messages.Send(ctx, "alice", uuid.New(), SendMessageInput{Text: "hello?"})
	require.ErrorIs(t, err, ErrChannelNotFound)

	require.Empty(t, f.notifier.messages)
}

func TestChannelService_ListMessagesPaginates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice", "bob")
	ch, err := f.channels.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.messages.Send(ctx, "alice", ch.ID, SendMessageInput{Text: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	page, err := f.channels.ListMessages(ctx, "bob", ch.ID, nil, 2)
	require.NoError(t, err)
	require.True(t, page.HasMore)
	require.Equal(t, "m3", page.Messages[0].Text)
	require.Equal(t, "m4", page.Messages[1].Text)

	before := page.Messages[0].ID
	older, err := f.channels.ListMessages(ctx, "bob", ch.ID, &before, 10)
	require.NoError(t, err)
	require.False(t, older.HasMore)
	require.Len(t, older.Messages, 3)
	require.Equal(t, "m0", older.Messages[0].Text)
}

func TestPresenceService_TracksLastActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice", "bob")

	require.NoError(t, f.presence.Connected(ctx, "bob"))
	users, err := f.directory.List(ctx, "alice", 10)
	require.NoError(t, err)
	require.Equal(t, "bob", users[0].ID)
	require.True(t, users[0].Online)
	require.NotNil(t, users[0].LastActive)

	require.NoError(t, f.presence.Disconnected(ctx, "bob"))
	bob, err := f.directory.Get(ctx, "bob")
	require.NoError(t, err)
	require.False(t, bob.Online)

	require.Len(t, f.notifier.presence, 2)
	require.True(t, f.notifier.presence[0].Online)
	require.False(t, f.notifier.presence[1].Online)
}

func TestPresenceService_ResetKeepsLastActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.register(t, "alice", "bob")
	require.NoError(t, f.presence.Connected(ctx, "bob"))

	require.NoError(t, f.presence.Reset(ctx))

	bob, err := f.directory.Get(ctx, "bob")
	require.NoError(t, err)
	require.False(t, bob.Online)
	require.NotNil(t, bob.LastActive)
}
