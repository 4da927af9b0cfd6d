package model

import "time"

// PassStatus enumerates the lifecycle states of a hall pass.  A pass
// starts out pending (or active when the destination does not require
// approval), moves through approved and active, and terminates in
// completed, expired or cancelled.  Terminal passes are never mutated
// again; they are retained for audit history.
type PassStatus string

const (
    StatusPending   PassStatus = "pending"
    StatusApproved  PassStatus = "approved"
    StatusActive    PassStatus = "active"
    StatusCompleted PassStatus = "completed"
    StatusExpired   PassStatus = "expired"
    StatusCancelled PassStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s PassStatus) IsTerminal() bool {
    return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// OpenStatuses lists the non-terminal states. A student may hold at
// most one pass in any of these states at a time; the passes table
// enforces this through a generated open_slot column under a unique key.
var OpenStatuses = []PassStatus{StatusPending, StatusApproved, StatusActive}

// Pass represents a row in the `passes` table: a time-boxed permission
// for a student to move from an origin location to a destination.
// Only the lifecycle engine mutates status and its associated
// timestamps; every such write is a conditional update keyed on the
// previously observed status.
//
// Fields:
//  ID                 – primary key identifier.
//  StudentID          – student the pass belongs to.
//  OriginID           – location the student is leaving.
//  DestinationID      – location the student is headed to.
//  Status             – lifecycle state, see PassStatus.
//  RequestedAt        – when the student requested the pass.
//  ApprovedAt         – when staff approved it (null until approved).
//  ApprovedBy         – staff user who approved it (nullable).
//  DepartedAt         – when the student left the origin (nullable).
//  ArrivedAt          – when the student reached the destination (nullable).
//  ReturnedAt         – when the student returned (nullable).
//  TimeLimitMinutes   – allotted minutes before the pass is overtime.
//  IsOvertime         – advisory flag set by the overtime sweep while active.
//  OvertimeNotifiedAt – when the overtime event was published (nullable);
//                       doubles as the exactly-once guard for the sweep.
//  Notes              – free-form note from the student (nullable).
//  CreatedAt          – timestamp of creation.
//  UpdatedAt          – timestamp of last update.
type Pass struct {
    ID                 uint64     `json:"id"`                             // passes.id
    StudentID          uint64     `json:"student_id"`                     // passes.student_id
    OriginID           uint64     `json:"origin_id"`                      // passes.origin_id
    DestinationID      uint64     `json:"destination_id"`                 // passes.destination_id
    Status             PassStatus `json:"status"`                         // passes.status
    RequestedAt        time.Time  `json:"requested_at"`                   // passes.requested_at
    ApprovedAt         *time.Time `json:"approved_at,omitempty"`          // passes.approved_at (nullable)
    ApprovedBy         *uint64    `json:"approved_by,omitempty"`          // passes.approved_by (nullable)
    DepartedAt         *time.Time `json:"departed_at,omitempty"`          // passes.departed_at (nullable)
    ArrivedAt          *time.Time `json:"arrived_at,omitempty"`           // passes.arrived_at (nullable)
    ReturnedAt         *time.Time `json:"returned_at,omitempty"`          // passes.returned_at (nullable)
    TimeLimitMinutes   int        `json:"time_limit_minutes"`             // passes.time_limit_minutes
    IsOvertime         bool       `json:"is_overtime"`                    // passes.is_overtime
    OvertimeNotifiedAt *time.Time `json:"overtime_notified_at,omitempty"` // passes.overtime_notified_at (nullable)
    Notes              *string    `json:"notes,omitempty"`                // passes.notes (nullable)
    CreatedAt          time.Time  `json:"created_at"`                     // passes.created_at
    UpdatedAt          time.Time  `json:"updated_at"`                     // passes.updated_at
}

// Elapsed returns how long the student has been out, measured from
// DepartedAt.  It returns zero when the student has not departed yet.
func (p *Pass) Elapsed(now time.Time) time.Duration {
    if p.DepartedAt == nil {
        return 0
    }
    d := now.Sub(*p.DepartedAt)
    if d < 0 {
        return 0
    }
    return d
}

// Overdue reports whether the elapsed time exceeds the pass's time
// limit.  The comparison is strict: a pass is overdue only once it has
// been out longer than the limit, not at the boundary.
func (p *Pass) Overdue(now time.Time) bool {
    return p.Elapsed(now) > time.Duration(p.TimeLimitMinutes)*time.Minute
}
