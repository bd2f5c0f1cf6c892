package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wrap a websocket.Conn to serialize all writes
type connWrap struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *connWrap) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *connWrap) WriteControl(mt int, data []byte, deadline time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(mt, data, deadline)
}

// Hub is the connection layer: it maps opaque connection handles to live
// sockets and maintains named broadcast rooms (here always keyed by user
// identity). Delivery is best-effort; write errors are swallowed and the
// failing connection is reaped by its own read loop.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*connWrap
	rooms  map[string]map[string]*connWrap // room -> handle -> conn
	joined map[string]map[string]struct{}  // handle -> rooms, for unregister cleanup
}

func New() *Hub {
	return &Hub{
		conns:  make(map[string]*connWrap),
		rooms:  make(map[string]map[string]*connWrap),
		joined: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(handle string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[handle] = &connWrap{c: c}
}

// Unregister drops the handle and its room memberships. Idempotent.
func (h *Hub) Unregister(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, handle)
	for room := range h.joined[handle] {
		if peers := h.rooms[room]; peers != nil {
			delete(peers, handle)
			if len(peers) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.joined, handle)
}

// JoinRoom adds the handle to a named room. Reports false when the handle
// is no longer registered (it disconnected while the event was in flight).
func (h *Hub) JoinRoom(handle, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cw := h.conns[handle]
	if cw == nil {
		return false
	}
	peers := h.rooms[room]
	if peers == nil {
		peers = make(map[string]*connWrap)
		h.rooms[room] = peers
	}
	peers[handle] = cw
	set := h.joined[handle]
	if set == nil {
		set = make(map[string]struct{})
		h.joined[handle] = set
	}
	set[room] = struct{}{}
	return true
}

// EmitTo sends a JSON payload to one handle. Reports whether the handle
// was registered; write errors are ignored.
func (h *Hub) EmitTo(handle string, payload any) bool {
	h.mu.RLock()
	cw := h.conns[handle]
	h.mu.RUnlock()
	if cw == nil {
		return false
	}
	_ = cw.WriteJSON(payload)
	return true
}

// EmitRoom sends a JSON payload to every member of a room.
func (h *Hub) EmitRoom(room string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cw := range h.rooms[room] {
		_ = cw.WriteJSON(payload)
	}
}

// BroadcastAll sends a JSON payload to every registered connection,
// joined or not. Best-effort; ignores write errors.
func (h *Hub) BroadcastAll(payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cw := range h.conns {
		_ = cw.WriteJSON(payload)
	}
}

func (h *Hub) Ping(handle string, data []byte) error {
	h.mu.RLock()
	cw := h.conns[handle]
	h.mu.RUnlock()
	if cw == nil {
		return nil
	}
	return cw.WriteControl(websocket.PingMessage, data, time.Now().Add(10*time.Second))
}

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
