package realtime

import (
    "sync"

    "github.com/google/uuid"
)

// Session is one live connection in the registry.  It is runtime-only
// state: it never persists anything and is never authoritative for
// pass state.  Events are handed to the session through a buffered
// channel; when the buffer is full the event is dropped for that
// session (the client's polling fallback recovers the state).
type Session struct {
    ID     string
    UserID uint64
    Role   string

    send    chan Event
    closeMu sync.Once
    done    chan struct{}
}

// NewSession allocates a session for the given identity with the
// given delivery buffer size.
func NewSession(userID uint64, role string, buffer int) *Session {
    return &Session{
        ID:     uuid.NewString(),
        UserID: userID,
        Role:   role,
        send:   make(chan Event, buffer),
        done:   make(chan struct{}),
    }
}

// Events returns the channel the transport drains to the client.
func (s *Session) Events() <-chan Event { return s.send }

// Done is closed when the session is shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// trySend queues the event without blocking.  It reports false when
// the session's buffer is full or the session is closed.
func (s *Session) trySend(ev Event) bool {
    select {
    case <-s.done:
        return false
    default:
    }
    select {
    case s.send <- ev:
        return true
    default:
        return false
    }
}

// Close shuts the session down.  Safe to call more than once.
func (s *Session) Close() {
    s.closeMu.Do(func() { close(s.done) })
}
