// Package realtime implements the room-based event distribution layer:
// a hub mapping room names to live sessions, and the envelope pushed
// to them on every pass transition.  Delivery is fire-and-forget to
// currently connected sessions; the hub is a latency optimization on
// top of the synchronous query endpoints, never a source of truth.
package realtime

import (
    "strconv"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

// Event types published by the lifecycle engine and the overtime sweep.
const (
    EventPassCreated   = "pass_created"
    EventPassApproved  = "pass_approved"
    EventPassActive    = "pass_active"
    EventPassCompleted = "pass_completed"
    EventPassCancelled = "pass_cancelled"
    EventPassExpired   = "pass_expired"
    EventPassOvertime  = "pass_overtime"
)

// Well-known room names.  Staff and admin sessions join hall_monitor
// (and emergency_alerts) automatically on connect; admins additionally
// join admin.  Each session also joins its user's own room.
const (
    RoomHallMonitor = "hall_monitor"
    RoomAdmin       = "admin"
    RoomEmergency   = "emergency_alerts"
)

// RoomStudent returns the per-student room name, e.g. "student:42".
func RoomStudent(studentID uint64) string {
    return "student:" + strconv.FormatUint(studentID, 10)
}

// Event is the envelope delivered to subscribed sessions.  The pass
// snapshot is embedded so consumers can render without a follow-up
// query; clients still re-query authoritative state on reconnect.
type Event struct {
    ID        string      `json:"event_id"`
    Type      string      `json:"event_type"`
    Pass      *model.Pass `json:"pass"`
    Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an envelope with a fresh ID and the given timestamp.
func NewEvent(eventType string, pass *model.Pass, at time.Time) Event {
    return Event{
        ID:        uuid.NewString(),
        Type:      eventType,
        Pass:      pass,
        Timestamp: at.UTC(),
    }
}

// PassRooms lists the rooms an event about the given pass is
// published to: the student's own room plus the monitoring rooms.
func PassRooms(pass *model.Pass) []string {
    return []string{RoomStudent(pass.StudentID), RoomHallMonitor, RoomAdmin}
}
