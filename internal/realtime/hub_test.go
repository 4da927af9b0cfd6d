package realtime

import (
    "testing"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

func testEvent(passID uint64) Event {
    return NewEvent(EventPassCreated, &model.Pass{ID: passID, StudentID: 1}, time.Now())
}

func drain(t *testing.T, s *Session) Event {
    t.Helper()
    select {
    case ev := <-s.Events():
        return ev
    default:
        t.Fatalf("expected a buffered event for session %s", s.ID)
        return Event{}
    }
}

func TestPublishDeliversToRoomMembers(t *testing.T) {
    hub := NewHub(zap.NewNop())
    student := NewSession(1, model.RoleStudent, 4)
    staff := NewSession(2, model.RoleStaff, 4)
    other := NewSession(3, model.RoleStudent, 4)
    for _, s := range []*Session{student, staff, other} {
        hub.Register(s)
    }
    hub.Join(student, RoomStudent(1))
    hub.Join(staff, RoomHallMonitor)
    hub.Join(other, RoomStudent(3))

    ev := testEvent(7)
    hub.Publish([]string{RoomStudent(1), RoomHallMonitor, RoomAdmin}, ev)

    if got := drain(t, student); got.ID != ev.ID {
        t.Errorf("student received wrong event %s", got.ID)
    }
    if got := drain(t, staff); got.ID != ev.ID {
        t.Errorf("staff received wrong event %s", got.ID)
    }
    select {
    case <-other.Events():
        t.Fatalf("session outside the target rooms must not receive the event")
    default:
    }
}

func TestPublishDeliversOncePerSession(t *testing.T) {
    hub := NewHub(zap.NewNop())
    admin := NewSession(9, model.RoleAdmin, 4)
    hub.Register(admin)
    hub.Join(admin, RoomHallMonitor)
    hub.Join(admin, RoomAdmin)

    hub.Publish([]string{RoomHallMonitor, RoomAdmin}, testEvent(1))

    drain(t, admin)
    select {
    case <-admin.Events():
        t.Fatalf("session in several target rooms must receive the event once")
    default:
    }
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
    hub := NewHub(zap.NewNop())
    s := NewSession(1, model.RoleStudent, 1)
    hub.Register(s)
    hub.Join(s, RoomStudent(1))

    first := testEvent(1)
    hub.Publish([]string{RoomStudent(1)}, first)
    hub.Publish([]string{RoomStudent(1)}, testEvent(2)) // dropped, buffer full

    if got := drain(t, s); got.ID != first.ID {
        t.Errorf("expected the first event to survive, got %s", got.ID)
    }
    select {
    case ev := <-s.Events():
        t.Fatalf("overflow event should have been dropped, got %s", ev.ID)
    default:
    }
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
    hub := NewHub(zap.NewNop())
    s := NewSession(1, model.RoleStaff, 4)
    hub.Register(s)
    hub.Join(s, RoomHallMonitor)
    hub.Join(s, RoomEmergency)

    hub.Unregister(s)

    if n := hub.SessionCount(); n != 0 {
        t.Errorf("expected no sessions, got %d", n)
    }
    if n := hub.RoomSize(RoomHallMonitor); n != 0 {
        t.Errorf("expected empty hall_monitor room, got %d", n)
    }
    select {
    case <-s.Done():
    default:
        t.Errorf("unregister must close the session")
    }
    if s.trySend(testEvent(1)) {
        t.Errorf("closed session must refuse new events")
    }

    // Publishing to the emptied rooms is a no-op, not a panic.
    hub.Publish([]string{RoomHallMonitor, RoomEmergency}, testEvent(2))
}

func TestStatsCountsRoomMembership(t *testing.T) {
    hub := NewHub(zap.NewNop())
    a := NewSession(1, model.RoleStaff, 4)
    b := NewSession(2, model.RoleAdmin, 4)
    hub.Register(a)
    hub.Register(b)
    hub.Join(a, RoomHallMonitor)
    hub.Join(b, RoomHallMonitor)
    hub.Join(b, RoomAdmin)

    stats := hub.Stats()
    if stats[RoomHallMonitor] != 2 || stats[RoomAdmin] != 1 {
        t.Fatalf("unexpected stats: %v", stats)
    }
    if hub.SessionCount() != 2 {
        t.Fatalf("expected 2 sessions, got %d", hub.SessionCount())
    }

    hub.Leave(b, RoomHallMonitor)
    if n := hub.RoomSize(RoomHallMonitor); n != 1 {
        t.Fatalf("expected 1 member after leave, got %d", n)
    }
}
