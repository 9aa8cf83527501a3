// Package gateway terminates client WebSocket connections, authenticates
// sessions, and relays engine broadcasts and kicks to the right sockets.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/presence"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
)

// client is one connected session's outbound side
type client struct {
	sessionID string
	wallet    string
	out       chan []byte
}

// Hub is the session registry for one server instance. It implements
// messaging.Handler so relayed events reach local sessions regardless of
// which instance produced them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	presence *presence.Registry
}

// NewHub creates a session hub backed by the given presence registry
func NewHub(registry *presence.Registry) *Hub {
	return &Hub{
		clients:  make(map[string]*client),
		presence: registry,
	}
}

// Presence exposes the hub's presence registry
func (h *Hub) Presence() *presence.Registry {
	return h.presence
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.sessionID] = c
}

func (h *Hub) unregister(sessionID string) {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	if ok {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	if ok {
		close(c.out)
	}
	h.presence.Leave(sessionID)
}

// SessionCount reports the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a payload for every connected session. Sessions whose
// outbound queue is full are skipped rather than blocking the fan-out.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.out <- payload:
		default:
			logger.Warn("session outbound queue full, dropping broadcast",
				zap.String("session_id", c.sessionID))
		}
	}
}

// Send queues a payload for one session
func (h *Hub) Send(sessionID string, payload []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case c.out <- payload:
		return true
	default:
		logger.Warn("session outbound queue full, dropping message",
			zap.String("session_id", sessionID))
		return false
	}
}

// HandleSpaceUpdated relays a space change to every local session
func (h *Hub) HandleSpaceUpdated(update protocol.SpaceUpdated) {
	payload, err := json.Marshal(update)
	if err != nil {
		logger.Error(fmt.Errorf("failed to marshal space update: %w", err))
		return
	}
	h.Broadcast(payload)
}

// HandleSpaceKicked delivers a kick to the target wallet's sessions inside
// the space and removes them from presence. The socket stays open; the
// session just no longer occupies the space.
func (h *Hub) HandleSpaceKicked(kick protocol.SpaceKicked) {
	payload, err := json.Marshal(kick)
	if err != nil {
		logger.Error(fmt.Errorf("failed to marshal kick: %w", err))
		return
	}
	for _, occ := range h.presence.Occupants(kick.SpaceID) {
		if occ.Wallet != kick.Wallet {
			continue
		}
		h.Send(occ.SessionID, payload)
		h.presence.Leave(occ.SessionID)
		logger.Info("occupant kicked from space",
			zap.String("space_id", kick.SpaceID),
			zap.String("session_id", occ.SessionID),
			zap.String("reason", string(kick.Reason)),
		)
	}
}
