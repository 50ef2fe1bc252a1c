package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository/memory"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/ws"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	users := memory.NewUserRepo()
	channels := service.NewChannelService(memory.NewChannelRepo(), memory.NewMessageRepo(), users)
	tokens := service.NewTokenService(users, "router-test-secret-0123", "pulsechat", time.Hour)

	srv := httptest.NewServer(New(zerolog.Nop(), Services{
		Tokens:    tokens,
		Directory: service.NewDirectoryService(users),
		Channels:  channels,
		Messages:  service.NewMessageService(channels),
		Hub:       ws.NewHub(channels, zerolog.Nop()),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func issue(t *testing.T, srv *httptest.Server, userID string) string {
	t.Helper()
	status, body := do(t, srv, http.MethodPost, "/api/token", "", map[string]string{"userId": userID})
	require.Equal(t, http.StatusOK, status)

	var token string
	require.NoError(t, json.Unmarshal(body["token"], &token))
	require.NotEmpty(t, token)
	return token
}

func TestTokenEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing user id", func(t *testing.T) {
		status, body := do(t, srv, http.MethodPost, "/api/token", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.JSONEq(t, `"Missing userId"`, string(body["error"]))
	})

	t.Run("wrong method", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodGet, "/api/token", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, status)
	})

	t.Run("issues usable token", func(t *testing.T) {
		token := issue(t, srv, "Alice Smith")

		status, body := do(t, srv, http.MethodGet, "/api/v1/users/me", token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `"alice-smith"`, string(body["id"]))
	})
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	status, _ := do(t, srv, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDirectoryExcludesCaller(t *testing.T) {
	srv := newTestServer(t)
	alice := issue(t, srv, "alice")
	issue(t, srv, "bob")
	issue(t, srv, "carol")

	status, body := do(t, srv, http.MethodGet, "/api/v1/users?limit=20", alice, nil)
	require.Equal(t, http.StatusOK, status)

	var users []domain.User
	require.NoError(t, json.Unmarshal(body["users"], &users))
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, "alice", u.ID)
	}
}

func TestUpdateMe(t *testing.T) {
	srv := newTestServer(t)
	alice := issue(t, srv, "alice")

	status, body := do(t, srv, http.MethodPatch, "/api/v1/users/me", alice, map[string]string{"name": "Alice"})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"Alice"`, string(body["name"]))
}

func TestDirectChannelFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := issue(t, srv, "alice")
	bob := issue(t, srv, "bob")
	carol := issue(t, srv, "carol")

	status, first := do(t, srv, http.MethodPost, "/api/v1/channels", alice, map[string]any{"members": []string{"alice", "bob"}})
	require.Equal(t, http.StatusOK, status)
	status, second := do(t, srv, http.MethodPost, "/api/v1/channels", bob, map[string]any{"members": []string{"alice", "bob"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(first["id"]), string(second["id"]))

	var channelID string
	require.NoError(t, json.Unmarshal(first["id"], &channelID))

	t.Run("caller must be a member", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/channels", carol, map[string]any{"members": []string{"alice", "bob"}})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("self channel rejected", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/channels", alice, map[string]any{"members": []string{"alice", "alice"}})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown peer", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/channels", alice, map[string]any{"members": []string{"alice", "nobody"}})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("send and list", func(t *testing.T) {
		path := "/api/v1/channels/" + channelID + "/messages"

		status, _ := do(t, srv, http.MethodPost, path, alice, map[string]string{"text": "hi bob"})
		require.Equal(t, http.StatusCreated, status)
		status, _ = do(t, srv, http.MethodPost, path, bob, map[string]string{"text": "hi alice"})
		require.Equal(t, http.StatusCreated, status)

		status, body := do(t, srv, http.MethodGet, path, bob, nil)
		require.Equal(t, http.StatusOK, status)

		var messages []domain.Message
		require.NoError(t, json.Unmarshal(body["messages"], &messages))
		require.Len(t, messages, 2)
		assert.Equal(t, "hi bob", messages[0].Text)
		assert.Equal(t, "hi alice", messages[1].Text)
	})

	t.Run("empty message rejected", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/channels/"+channelID+"/messages", alice, map[string]string{"text": "  "})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("outsider cannot read", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodGet, "/api/v1/channels/"+channelID+"/messages", carol, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("bad channel id", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodGet, "/api/v1/channels/not-a-uuid", alice, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}
