// Package network exposes the simulation over HTTP and pushes tick
// notifications to WebSocket clients, one room per session.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/metrics"
)

// ErrNoListener is returned by Send when nobody is connected to the session.
var ErrNoListener = errors.New("no client connected to session")

// ErrBackpressure is returned by Send when every client of the session had a full buffer.
var ErrBackpressure = errors.New("client send buffers full")

// Hub maintains the connected clients of every session and fans
// notifications out to them. It implements events.Sink.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	maxPerSession int
	logger        *logger.Logger
	metrics       *metrics.Collector
}

var _ events.Sink = (*Hub)(nil)

// NewHub initializes a hub. maxPerSession <= 0 means unlimited; m may be nil.
func NewHub(log *logger.Logger, m *metrics.Collector, maxPerSession int) *Hub {
	return &Hub{
		rooms:         make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		maxPerSession: maxPerSession,
		logger:        log,
		metrics:       m,
	}
}

// Run handles client registration until ctx is cancelled, then closes
// every remaining client. Run must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[c.sessionID]
	if h.maxPerSession > 0 && len(room) >= h.maxPerSession {
		close(c.send)
		h.logger.Warnf("Session %s already has %d clients, rejecting", c.sessionID, len(room))
		return
	}
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[c.sessionID] = room
	}
	room[c] = true
	h.metrics.RecordWSConnection(1)
	h.logger.With(logger.Fields{"session": c.sessionID}).Info("WebSocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked removes a client and closes its send channel. Callers hold h.mu.
func (h *Hub) dropLocked(c *Client) {
	room, ok := h.rooms[c.sessionID]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.sessionID)
	}
	close(c.send)
	h.metrics.RecordWSConnection(-1)
	h.logger.With(logger.Fields{"session": c.sessionID}).Info("WebSocket client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		for c := range room {
			h.dropLocked(c)
		}
	}
}

// Send pushes a notification to every client of the session without
// blocking. A client whose buffer is full misses the notification.
func (h *Hub) Send(sessionID string, n events.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to serialize %s notification: %w", n.Kind, err)
	}
	return h.deliver(sessionID, payload)
}

// reply queues a direct response to one client.
func (h *Hub) reply(c *Client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Errorf("Failed to serialize reply: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.rooms[c.sessionID][c] {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.Warnf("Reply to session %s dropped, buffer full", c.sessionID)
	}
}

func (h *Hub) deliver(sessionID string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[sessionID]
	if len(room) == 0 {
		return ErrNoListener
	}
	delivered := 0
	for c := range room {
		select {
		case c.send <- payload:
			delivered++
		default:
		}
	}
	if delivered == 0 {
		return ErrBackpressure
	}
	return nil
}

// Clients is the number of clients connected to a session.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
