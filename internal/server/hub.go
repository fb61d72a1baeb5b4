package server

import (
	"log/slog"
	"sync"
)

const sendBuffer = 32

type client struct {
	id   string
	room string
	send chan []byte
}

// Hub tracks live websocket connections and their team rooms. Delivery is
// best-effort: a client whose send buffer is full gets the frame dropped
// rather than stalling the sender.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]*client
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[string]*client),
		rooms:  make(map[string]map[string]*client),
	}
}

func (h *Hub) Register(connID string) *client {
	c := &client{id: connID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.conns[connID] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	if c.room != "" {
		if members := h.rooms[c.room]; members != nil {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, c.room)
			}
		}
	}
}

// JoinRoom moves the connection into the room for a team code, leaving any
// previous room first.
func (h *Hub) JoinRoom(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	if c.room != "" && c.room != code {
		if members := h.rooms[c.room]; members != nil {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, c.room)
			}
		}
	}
	c.room = code
	members := h.rooms[code]
	if members == nil {
		members = make(map[string]*client)
		h.rooms[code] = members
	}
	members[connID] = c
}

func (h *Hub) Send(connID string, frame []byte) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		h.deliver(c, frame)
	}
}

func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		h.deliver(c, frame)
	}
}

// ToRoomExcept fans a frame out to every connection in a room except one,
// typically the sender.
func (h *Hub) ToRoomExcept(code, exceptID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[code] {
		if id == exceptID {
			continue
		}
		h.deliver(c, frame)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) deliver(c *client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.logger.Debug("dropping frame for slow client", "conn", c.id)
	}
}
