// Package ws delivers session stream events to browsers over WebSocket.
// A hub tracks connections per session and bridges the cache pub/sub
// feed into per-connection send buffers.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/internal/cache"
	"github.com/atelier-ai/atelier/internal/observability"
)

type sessionMessage struct {
	sessionID uuid.UUID
	payload   []byte
}

// Hub maintains active connections grouped by session and broadcasts
// each session's events to its watchers.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]map[*Client]bool
	feeds       map[uuid.UUID]func()

	register   chan *Client
	unregister chan *Client
	broadcast  chan *sessionMessage

	events cache.PubSub
	logger *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub bridging the given event feed.
func NewHub(events cache.PubSub, logger *observability.Logger) *Hub {
	if logger == nil {
		logger = observability.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		connections: make(map[uuid.UUID]map[*Client]bool),
		feeds:       make(map[uuid.UUID]func()),
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		broadcast:   make(chan *sessionMessage, 1024),
		events:      events,
		logger:      logger.WithOperation("ws"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run is the hub's event loop. Call in a goroutine; returns on Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Stop shuts the hub down, closing every connection.
func (h *Hub) Stop() {
	h.cancel()
}

// Broadcast queues a raw payload for every watcher of a session.
func (h *Hub) Broadcast(sessionID uuid.UUID, payload []byte) {
	select {
	case h.broadcast <- &sessionMessage{sessionID: sessionID, payload: payload}:
	case <-time.After(5 * time.Second):
		h.logger.Warn().Str("session_id", sessionID.String()).Msg("broadcast queue full, event dropped")
	}
}

// Watchers returns the number of connections watching a session.
func (h *Hub) Watchers(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

// add registers a client. The first watcher of a session opens the
// pub/sub subscription that feeds the broadcast loop.
func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[client.sessionID] == nil {
		h.connections[client.sessionID] = make(map[*Client]bool)
		h.openFeed(client.sessionID)
	}
	h.connections[client.sessionID][client] = true

	h.logger.Debug().
		Str("session_id", client.sessionID.String()).
		Int("watchers", len(h.connections[client.sessionID])).
		Msg("client registered")
}

// remove unregisters a client. The last watcher leaving closes the
// session's subscription.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.connections[client.sessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)

	if len(clients) == 0 {
		delete(h.connections, client.sessionID)
		if unsubscribe, ok := h.feeds[client.sessionID]; ok {
			unsubscribe()
			delete(h.feeds, client.sessionID)
		}
	}
}

// openFeed subscribes to the session's event channel and pipes payloads
// into the broadcast loop. Callers hold h.mu.
func (h *Hub) openFeed(sessionID uuid.UUID) {
	if h.events == nil {
		return
	}
	msgs, unsubscribe, err := h.events.Subscribe(h.ctx, cache.EventChannel(sessionID))
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID.String()).Msg("event subscribe failed")
		return
	}
	h.feeds[sessionID] = unsubscribe

	go func() {
		for payload := range msgs {
			h.Broadcast(sessionID, payload)
		}
	}()
}

func (h *Hub) fanOut(msg *sessionMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.connections[msg.sessionID]))
	for c := range h.connections[msg.sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- msg.payload:
		default:
			// Slow consumer: drop the connection rather than block the feed.
			h.logger.Warn().
				Str("session_id", client.sessionID.String()).
				Msg("closing slow client")
			go func(c *Client) {
				h.unregister <- c
				c.conn.Close()
			}(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, clients := range h.connections {
		for client := range clients {
			close(client.send)
			client.conn.Close()
		}
		delete(h.connections, sessionID)
		if unsubscribe, ok := h.feeds[sessionID]; ok {
			unsubscribe()
			delete(h.feeds, sessionID)
		}
	}
}
