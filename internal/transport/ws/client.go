package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	logger zerolog.Logger

	// subscribedChannels tracks which channels this client listens to.
	subscribedChannels map[uuid.UUID]struct{}
	mu                 sync.RWMutex

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		hub:                hub,
		conn:               conn,
		userID:             userID,
		logger:             hub.logger.With().Str("user_id", userID).Logger(),
		subscribedChannels: make(map[uuid.UUID]struct{}),
		send:               make(chan []byte, sendBufSize),
		done:               make(chan struct{}),
	}
}

// IsSubscribed checks if this client is subscribed to a channel.
func (c *Client) IsSubscribed(channelID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscribedChannels[channelID]
	return ok
}

// Subscribe adds a channel subscription. Subscribing twice is a no-op.
func (c *Client) Subscribe(channelID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribedChannels[channelID] = struct{}{}
}

// Unsubscribe removes a channel subscription.
func (c *Client) Unsubscribe(channelID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribedChannels, channelID)
}

// close stops the write pump and tears down the socket. Safe to call more
// than once. The close handshake runs in the background.
func (c *Client) close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go c.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

// ReadPump reads messages from the WebSocket and routes them to the Hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close("")
	}()

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug().Msg("ws: client disconnected")
			} else {
				c.logger.Debug().Err(err).Msg("ws: read error")
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close("")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("ws: write error")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("ws: ping error")
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeChannelSubscribe:
		var p ChannelPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ChannelID == uuid.Nil {
			c.sendError(nil, "INVALID_PAYLOAD", "invalid channel.subscribe payload")
			return
		}
		if err := c.hub.authorize(c.userID, p.ChannelID); err != nil {
			c.sendError(&p.ChannelID, "FORBIDDEN", "cannot subscribe to this channel")
			return
		}
		c.Subscribe(p.ChannelID)
		c.sendAck(EventTypeChannelSubscribed, p.ChannelID)
		c.logger.Debug().Stringer("channel_id", p.ChannelID).Msg("ws: subscribed")

	case EventTypeChannelUnsubscribe:
		var p ChannelPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError(nil, "INVALID_PAYLOAD", "invalid channel.unsubscribe payload")
			return
		}
		c.Unsubscribe(p.ChannelID)
		c.sendAck(EventTypeChannelUnsubscribed, p.ChannelID)
		c.logger.Debug().Stringer("channel_id", p.ChannelID).Msg("ws: unsubscribed")

	case EventTypePing:
		c.sendEvent(&Event{Type: EventTypePong, Timestamp: time.Now().Unix()})

	default:
		c.sendError(nil, "UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendAck(eventType string, channelID uuid.UUID) {
	evt, err := NewEvent(eventType, &channelID, ChannelPayload{ChannelID: channelID})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}

// sendError reports a failed request. channelID is set when the failure
// belongs to a channel so the requester can match it.
func (c *Client) sendError(channelID *uuid.UUID, code, message string) {
	evt, err := NewEvent(EventTypeError, channelID, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}

func (c *Client) sendEvent(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue never blocks; a client whose buffer is full misses the event.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}
