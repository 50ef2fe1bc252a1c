package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/metrics"
)

// ChannelAuthorizer confirms a user may watch a channel.
type ChannelAuthorizer interface {
	Get(ctx context.Context, callerID string, channelID uuid.UUID) (*domain.Channel, error)
}

// PresenceTracker is told when a user's event connection opens and closes.
type PresenceTracker interface {
	Connected(ctx context.Context, userID string) error
	Disconnected(ctx context.Context, userID string) error
}

const presenceTimeout = 5 * time.Second

type presenceUpdate struct {
	userID string
	online bool
}

// Hub manages all active WebSocket clients and routes events.
type Hub struct {
	// clients maps userID → client. A newer connection replaces an older one.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	deliver    chan Envelope
	presenceQ  chan presenceUpdate
	stopped    chan struct{}

	channels ChannelAuthorizer
	presence PresenceTracker
	logger   zerolog.Logger
}

func NewHub(channels ChannelAuthorizer, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan Envelope, 256),
		presenceQ:  make(chan presenceUpdate, 256),
		stopped:    make(chan struct{}),
		channels:   channels,
		logger:     logger,
	}
}

// SetPresenceTracker sets the presence tracker (optional dependency).
func (h *Hub) SetPresenceTracker(p PresenceTracker) {
	h.presence = p
}

// Run starts the Hub's main event loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)

	tracked := make(chan struct{})
	go h.trackPresence(tracked)

	for {
		select {
		case client := <-h.register:
			if old, ok := h.clients[client.userID]; ok {
				old.close("replaced by a newer connection")
				metrics.WSConnections.Dec()
			}
			h.clients[client.userID] = client
			metrics.WSConnections.Inc()
			h.logger.Info().Str("user_id", client.userID).Int("total", len(h.clients)).Msg("ws hub: user connected")
			h.queuePresence(client.userID, true)

		case client := <-h.unregister:
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				client.close("")
				metrics.WSConnections.Dec()
				h.logger.Info().Str("user_id", client.userID).Int("total", len(h.clients)).Msg("ws hub: user disconnected")
				h.queuePresence(client.userID, false)
			}

		case env := <-h.deliver:
			h.broadcast(env)

		case <-ctx.Done():
			for id, client := range h.clients {
				client.close("server shutting down")
				delete(h.clients, id)
				h.flushPresence(presenceUpdate{userID: id})
			}
			metrics.WSConnections.Set(0)

			// Pending updates are applied before Run returns.
			close(h.presenceQ)
			<-tracked
			return nil
		}
	}
}

// Register hands a freshly accepted client to the hub.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Deliver routes an envelope received from the bus to local clients.
func (h *Hub) Deliver(env Envelope) {
	select {
	case h.deliver <- env:
	case <-h.stopped:
	}
}

func (h *Hub) broadcast(env Envelope) {
	if env.Event == nil {
		return
	}
	data, err := json.Marshal(env.Event)
	if err != nil {
		h.logger.Error().Err(err).Msg("ws hub: marshal error")
		return
	}

	for id, client := range h.clients {
		// Only send to clients subscribed to this channel
		if env.ChannelID != nil && !client.IsSubscribed(*env.ChannelID) {
			continue
		}
		if !client.enqueue(data) {
			// Client buffer full - disconnect rather than silently skip events.
			metrics.EventsDropped.Inc()
			h.logger.Warn().Str("user_id", id).Msg("ws hub: client too slow, disconnecting")
			delete(h.clients, id)
			client.close("too slow")
			metrics.WSConnections.Dec()
			h.queuePresence(id, false)
		}
	}
}

func (h *Hub) authorize(userID string, channelID uuid.UUID) error {
	_, err := h.channels.Get(context.Background(), userID, channelID)
	return err
}

func (h *Hub) queuePresence(userID string, online bool) {
	if h.presence == nil {
		return
	}
	select {
	case h.presenceQ <- presenceUpdate{userID: userID, online: online}:
	default:
		h.logger.Warn().Str("user_id", userID).Msg("ws hub: presence queue full")
	}
}

// flushPresence queues an update during shutdown, waiting for room.
func (h *Hub) flushPresence(u presenceUpdate) {
	if h.presence == nil {
		return
	}
	h.presenceQ <- u
}

// trackPresence applies presence changes in order, off the hub loop, until
// presenceQ is closed.
func (h *Hub) trackPresence(done chan<- struct{}) {
	defer close(done)

	for u := range h.presenceQ {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		var err error
		if u.online {
			err = h.presence.Connected(ctx, u.userID)
		} else {
			err = h.presence.Disconnected(ctx, u.userID)
		}
		cancel()
		if err != nil {
			h.logger.Error().Err(err).Str("user_id", u.userID).Msg("ws hub: presence update failed")
		}
	}
}
