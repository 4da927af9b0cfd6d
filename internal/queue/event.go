// Package queue defines message payloads exchanged over the message broker.
package queue

// PassEvent is published on every pass transition.  It carries enough
// denormalized detail for downstream consumers to log, notify parents,
// or feed analytics without querying the primary database.
type PassEvent struct {
    EventID            string `json:"event_id"`
    Type               string `json:"type"`
    PassID             uint64 `json:"pass_id"`
    StudentID          uint64 `json:"student_id"`
    OriginID           uint64 `json:"origin_id"`
    DestinationID      uint64 `json:"destination_id"`
    Status             string `json:"status"`
    TimeLimitMinutes   int    `json:"time_limit_minutes"`
    RequestedAt        string `json:"requested_at"`
    DepartedAt         string `json:"departed_at,omitempty"`
    ReturnedAt         string `json:"returned_at,omitempty"`
    OvertimeNotifiedAt string `json:"overtime_notified_at,omitempty"`
    OccurredAt         string `json:"occurred_at"`
}
