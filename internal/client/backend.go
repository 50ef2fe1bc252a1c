package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/session"
)

// Backend connects sessions to a pulsechat server.
type Backend struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewBackend(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Backend {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Connect stores the user's profile, opens the event stream and starts
// reading it.
func (b *Backend) Connect(ctx context.Context, user domain.User, token string) (session.Conn, error) {
	api := &apiClient{baseURL: b.baseURL, http: b.http, token: token}

	var me domain.User
	err := api.doRequest(ctx, http.MethodPatch, "/api/v1/users/me", profileRequest{
		Name:  user.Name,
		Image: user.Image,
	}, &me)
	if err != nil {
		return nil, classify("updating profile", err)
	}

	wsURL, err := websocketURL(b.baseURL, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrTransport, err)
	}

	// The dialer refuses http.Clients with a Timeout; ctx bounds the dial.
	ws, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: event stream rejected token", session.ErrAuth)
		}
		return nil, fmt.Errorf("%w: dialing event stream: %w", session.ErrTransport, err)
	}

	c := newConn(api, ws, me, b.logger.With().Str("user_id", me.ID).Logger())
	go c.readPump()

	b.logger.Debug().Str("user_id", me.ID).Msg("client: connected")
	return c, nil
}

type profileRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

func websocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// classify maps an HTTP failure onto the session error kinds.
func classify(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s: %w", session.ErrAuth, op, err)
	}
	return fmt.Errorf("%w: %s: %w", session.ErrTransport, op, err)
}
