package realtime

import (
    "sync"

    "go.uber.org/zap"
)

// Hub is the session registry and publish/subscribe fan-out.  It
// tracks which sessions exist, which rooms each belongs to, and
// delivers events to every session subscribed to any of the target
// rooms.  All methods are safe for concurrent use.  The hub is local
// to one process: it affects delivery reach, never pass state.
type Hub struct {
    mu       sync.RWMutex
    rooms    map[string]map[*Session]struct{}
    sessions map[string]*Session
    log      *zap.Logger
}

// NewHub returns an empty hub.
func NewHub(log *zap.Logger) *Hub {
    return &Hub{
        rooms:    make(map[string]map[*Session]struct{}),
        sessions: make(map[string]*Session),
        log:      log,
    }
}

// Register adds a session to the registry.  The session belongs to no
// rooms until Join is called.
func (h *Hub) Register(s *Session) {
    h.mu.Lock()
    h.sessions[s.ID] = s
    h.mu.Unlock()
    h.log.Info("session connected",
        zap.String("session_id", s.ID),
        zap.Uint64("user_id", s.UserID),
        zap.String("role", s.Role))
}

// Unregister removes the session from the registry and from every
// room, and closes it.  Reconnecting creates a brand new session;
// events published while disconnected are not replayed.
func (h *Hub) Unregister(s *Session) {
    h.mu.Lock()
    delete(h.sessions, s.ID)
    for room, members := range h.rooms {
        delete(members, s)
        if len(members) == 0 {
            delete(h.rooms, room)
        }
    }
    h.mu.Unlock()
    s.Close()
    h.log.Info("session disconnected",
        zap.String("session_id", s.ID),
        zap.Uint64("user_id", s.UserID))
}

// Join subscribes the session to a room, creating the room on first use.
func (h *Hub) Join(s *Session, room string) {
    h.mu.Lock()
    members, ok := h.rooms[room]
    if !ok {
        members = make(map[*Session]struct{})
        h.rooms[room] = members
    }
    members[s] = struct{}{}
    h.mu.Unlock()
}

// Leave unsubscribes the session from a room.
func (h *Hub) Leave(s *Session, room string) {
    h.mu.Lock()
    if members, ok := h.rooms[room]; ok {
        delete(members, s)
        if len(members) == 0 {
            delete(h.rooms, room)
        }
    }
    h.mu.Unlock()
}

// Publish delivers the event to every session subscribed to any of
// the rooms.  A session in several of the rooms receives the event
// once.  Delivery never blocks: sessions whose buffer is full are
// skipped and noted at debug level.
func (h *Hub) Publish(rooms []string, ev Event) {
    h.mu.RLock()
    targets := make(map[*Session]struct{})
    for _, room := range rooms {
        for s := range h.rooms[room] {
            targets[s] = struct{}{}
        }
    }
    h.mu.RUnlock()
    for s := range targets {
        if !s.trySend(ev) {
            h.log.Debug("event dropped for slow session",
                zap.String("session_id", s.ID),
                zap.String("event_type", ev.Type))
        }
    }
}

// RoomSize returns the number of sessions currently in the room.
func (h *Hub) RoomSize(room string) int {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return len(h.rooms[room])
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return len(h.sessions)
}

// Stats summarizes the registry for the monitoring endpoint.
func (h *Hub) Stats() map[string]int {
    h.mu.RLock()
    defer h.mu.RUnlock()
    out := make(map[string]int, len(h.rooms))
    for room, members := range h.rooms {
        out[room] = len(members)
    }
    return out
}
