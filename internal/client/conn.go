package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/session"
	"github.com/vedran77/pulsechat/internal/transport/ws"
)

const (
	historyLimit   = 200
	eventBufSize   = 256
	maxMessageSize = 1 << 20
)

var errConnClosed = errors.New("connection closed")

// Conn is a live connection: REST calls for requests, a WebSocket for
// server pushes.
type Conn struct {
	api    *apiClient
	ws     *websocket.Conn
	me     domain.User
	logger zerolog.Logger

	events chan session.Event

	mu sync.Mutex
	// acks holds callers waiting for a subscription to be confirmed.
	acks map[uuid.UUID][]chan error

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConn(api *apiClient, wsConn *websocket.Conn, me domain.User, logger zerolog.Logger) *Conn {
	wsConn.SetReadLimit(maxMessageSize)
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		api:    api,
		ws:     wsConn,
		me:     me,
		logger: logger,
		events: make(chan session.Event, eventBufSize),
		acks:   make(map[uuid.UUID][]chan error),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Conn) Me() domain.User {
	return c.me
}

func (c *Conn) Events() <-chan session.Event {
	return c.events
}

func (c *Conn) QueryUsers(ctx context.Context, limit int) ([]domain.User, error) {
	var resp struct {
		Users []domain.User `json:"users"`
	}
	path := "/api/v1/users?limit=" + strconv.Itoa(limit)
	if err := c.api.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, classify("listing users", err)
	}
	return resp.Users, nil
}

func (c *Conn) ResolveDirect(ctx context.Context, members [2]string) (*domain.Channel, error) {
	var ch domain.Channel
	body := map[string][]string{"members": {members[0], members[1]}}
	if err := c.api.doRequest(ctx, http.MethodPost, "/api/v1/channels", body, &ch); err != nil {
		return nil, classify("resolving channel", err)
	}
	return &ch, nil
}

// Watch subscribes first and fetches history once the server has confirmed
// the subscription, so no message can fall between the two.
func (c *Conn) Watch(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error) {
	ack := make(chan error, 1)
	c.mu.Lock()
	c.acks[channelID] = append(c.acks[channelID], ack)
	c.mu.Unlock()

	if err := c.writeEvent(ctx, ws.EventTypeChannelSubscribe, channelID); err != nil {
		c.dropAck(channelID, ack)
		return nil, err
	}

	select {
	case err := <-ack:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		c.dropAck(channelID, ack)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, fmt.Errorf("%w: %w", session.ErrTransport, errConnClosed)
	}

	return c.History(ctx, channelID, "", historyLimit)
}

// History returns up to limit messages older than before (all when empty),
// oldest first.
func (c *Conn) History(ctx context.Context, channelID uuid.UUID, before string, limit int) ([]domain.Message, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if before != "" {
		q.Set("before", before)
	}

	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	path := "/api/v1/channels/" + channelID.String() + "/messages?" + q.Encode()
	if err := c.api.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, classify("fetching history", err)
	}
	return resp.Messages, nil
}

func (c *Conn) Unwatch(ctx context.Context, channelID uuid.UUID) error {
	return c.writeEvent(ctx, ws.EventTypeChannelUnsubscribe, channelID)
}

func (c *Conn) Send(ctx context.Context, channelID uuid.UUID, text string) (*domain.Message, error) {
	var msg domain.Message
	path := "/api/v1/channels/" + channelID.String() + "/messages"
	if err := c.api.doRequest(ctx, http.MethodPost, path, map[string]string{"text": text}, &msg); err != nil {
		return nil, classify("sending message", err)
	}
	return &msg, nil
}

// Close ends the event stream. Events is closed once the reader stops.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.ws.Close(websocket.StatusNormalClosure, ""); err != nil {
			c.logger.Debug().Err(err).Msg("client: close")
		}
	})
	return nil
}

func (c *Conn) writeEvent(ctx context.Context, eventType string, channelID uuid.UUID) error {
	payload, err := json.Marshal(ws.ChannelPayload{ChannelID: channelID})
	if err != nil {
		return err
	}
	evt := ws.Event{Type: eventType, Payload: payload}
	if err := wsjson.Write(ctx, c.ws, evt); err != nil {
		return fmt.Errorf("%w: writing %s: %w", session.ErrTransport, eventType, err)
	}
	return nil
}

func (c *Conn) readPump() {
	defer func() {
		c.cancel()
		c.failAcks()
		close(c.events)
	}()

	for {
		var evt ws.Event
		if err := wsjson.Read(c.ctx, c.ws, &evt); err != nil {
			if c.ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("client: event stream ended")
			}
			return
		}
		c.handleEvent(&evt)
	}
}

func (c *Conn) handleEvent(evt *ws.Event) {
	switch evt.Type {
	case ws.EventTypeMessageNew:
		var p ws.MessagePayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("client: bad message.new payload")
			return
		}
		msg := p.Message
		c.emit(session.Event{Type: session.EventMessageNew, ChannelID: msg.ChannelID, Message: &msg})

	case ws.EventTypePresence:
		var p ws.PresencePayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("client: bad presence payload")
			return
		}
		user := p.User
		c.emit(session.Event{Type: session.EventPresence, User: &user})

	case ws.EventTypeChannelSubscribed:
		if evt.ChannelID != nil {
			c.resolveAcks(*evt.ChannelID, nil)
		}

	case ws.EventTypeError:
		var p ws.ErrorPayload
		_ = json.Unmarshal(evt.Payload, &p)
		c.logger.Debug().Str("code", p.Code).Msg("client: server error event")
		if evt.ChannelID != nil {
			c.resolveAcks(*evt.ChannelID, fmt.Errorf("%w: %s: %s", session.ErrTransport, p.Code, p.Message))
		}
	}
}

func (c *Conn) emit(evt session.Event) {
	select {
	case c.events <- evt:
	case <-c.ctx.Done():
	}
}

func (c *Conn) resolveAcks(channelID uuid.UUID, err error) {
	c.mu.Lock()
	waiters := c.acks[channelID]
	delete(c.acks, channelID)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}
}

func (c *Conn) dropAck(channelID uuid.UUID, ack chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiters := c.acks[channelID]
	for i, w := range waiters {
		if w == ack {
			c.acks[channelID] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(c.acks[channelID]) == 0 {
		delete(c.acks, channelID)
	}
}

func (c *Conn) failAcks() {
	c.mu.Lock()
	acks := c.acks
	c.acks = make(map[uuid.UUID][]chan error)
	c.mu.Unlock()

	for _, waiters := range acks {
		for _, w := range waiters {
			w <- fmt.Errorf("%w: %w", session.ErrTransport, errConnClosed)
		}
	}
}
