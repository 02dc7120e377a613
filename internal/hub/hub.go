package hub

import "sync"

type Member interface {
	Write(message []byte) error
	Close() error
}

// Hub groups members into named rooms for broadcast. A member may sit in
// any number of rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Member]struct{}
}

func New() *Hub {
	return &Hub{rooms: make(map[string]map[Member]struct{})}
}

func (h *Hub) Join(room string, m Member) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[Member]struct{})
	}
	h.rooms[room][m] = struct{}{}
}

func (h *Hub) Leave(room string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, m)
}

func (h *Hub) LeaveAll(m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.rooms {
		h.leaveLocked(room, m)
	}
}

func (h *Hub) leaveLocked(room string, m Member) {
	set := h.rooms[room]
	if set == nil {
		return
	}
	delete(set, m)
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast writes message to every member of room except the given one.
// Members whose write fails are closed and dropped from all rooms.
func (h *Hub) Broadcast(room string, message []byte, except Member) {
	h.mu.RLock()
	set := h.rooms[room]
	members := make([]Member, 0, len(set))
	for m := range set {
		if m != except {
			members = append(members, m)
		}
	}
	h.mu.RUnlock()

	var failed []Member
	for _, m := range members {
		if err := m.Write(message); err != nil {
			failed = append(failed, m)
		}
	}
	for _, m := range failed {
		_ = m.Close()
		h.LeaveAll(m)
	}
}
