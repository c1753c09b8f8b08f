package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event represents a real-time event to be sent to clients.
type Event struct {
	Type    string `json:"event"`
	Payload any    `json:"data"`
}

// Client is the outbound queue of a single connection. The transport's write
// pump drains it.
type Client chan []byte

// room is the membership set of one room. Each room has its own lock so that
// joins and fan-outs in different rooms never contend.
type room struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

// Hub tracks which connections are in which room and delivers events to them.
// A connection belongs to at most one room; callers leave the old room before
// joining a new one. Hubs hold no global state and may be created freely.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[uint]*room

	clientsMu sync.RWMutex
	clients   map[string]Client
}

// NewHub creates a new Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		rooms:   make(map[uint]*room),
		clients: make(map[string]Client),
	}
}

// Register makes a connection reachable by SendTo and room deliveries.
func (h *Hub) Register(connID string, client Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[connID] = client
}

// Unregister forgets a connection. It does not touch room membership.
func (h *Hub) Unregister(connID string) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	delete(h.clients, connID)
}

// Join adds connID to roomID and returns the room's member count.
func (h *Hub) Join(roomID uint, connID string) int {
	for {
		r := h.getOrCreate(roomID)
		r.mu.Lock()
		// The room may have been dropped between lookup and lock once it emptied.
		if r.members == nil {
			r.mu.Unlock()
			continue
		}
		r.members[connID] = struct{}{}
		n := len(r.members)
		r.mu.Unlock()
		return n
	}
}

// Leave removes connID from roomID and returns the remaining member count,
// 0 if the room is unknown. Only the room's own lock is held while removing.
func (h *Hub) Leave(roomID uint, connID string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	if r.members == nil {
		r.mu.Unlock()
		return 0
	}
	delete(r.members, connID)
	n := len(r.members)
	r.mu.Unlock()

	if n == 0 {
		h.dropIfEmpty(roomID, r)
	}
	return n
}

func (h *Hub) dropIfEmpty(roomID uint, r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	// A Join may have refilled the room since it emptied.
	if len(r.members) > 0 || h.rooms[roomID] != r {
		return
	}
	r.members = nil
	delete(h.rooms, roomID)
}

// Count returns the number of connections in roomID.
func (h *Hub) Count(roomID uint) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Counts returns a snapshot of member counts of every non-empty room.
func (h *Hub) Counts() map[uint]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[uint]int, len(h.rooms))
	for id, r := range h.rooms {
		r.mu.RLock()
		out[id] = len(r.members)
		r.mu.RUnlock()
	}
	return out
}

// Members returns the connection ids currently in roomID.
func (h *Hub) Members(roomID uint) []string {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

func (h *Hub) getOrCreate(roomID uint) *room {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rooms[roomID]; !ok {
		r = &room{members: make(map[string]struct{})}
		h.rooms[roomID] = r
	}
	return r
}

// DeliverRoom sends an event to every connection present in roomID at the
// time of the call.
func (h *Hub) DeliverRoom(roomID uint, event Event) {
	payload, ok := h.encode(event)
	if !ok {
		return
	}
	for _, connID := range h.Members(roomID) {
		h.send(connID, payload)
	}
}

// DeliverAll sends an event to every registered connection.
func (h *Hub) DeliverAll(event Event) {
	payload, ok := h.encode(event)
	if !ok {
		return
	}
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for connID, client := range h.clients {
		h.trySend(connID, client, payload)
	}
}

// SendTo sends an event to a single connection.
func (h *Hub) SendTo(connID string, event Event) {
	payload, ok := h.encode(event)
	if !ok {
		return
	}
	h.send(connID, payload)
}

// SendRaw queues an already encoded frame to a single connection.
func (h *Hub) SendRaw(connID string, payload []byte) {
	h.send(connID, payload)
}

func (h *Hub) encode(event Event) ([]byte, bool) {
	b, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Unable to encode event", "event", event.Type, "error", err)
		return nil, false
	}
	return b, true
}

func (h *Hub) send(connID string, payload []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	if client, ok := h.clients[connID]; ok {
		h.trySend(connID, client, payload)
	}
}

// trySend uses a non-blocking send to prevent a slow client from blocking the hub.
// Caller holds clientsMu, which also keeps the transport from closing the channel
// until Unregister returns.
func (h *Hub) trySend(connID string, client Client, payload []byte) {
	select {
	case client <- payload:
	default:
		h.log.Warn("Client send buffer full, dropping event", "conn", connID)
	}
}
