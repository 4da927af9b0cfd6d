package model

import "time"

// EncounterGroup represents a row in the `encounter_groups` table.  A
// group names a set of students who must never be out of class at the
// same time: while any member holds a non-terminal pass, requests from
// the other members are denied.  Groups are soft-deleted by clearing
// IsActive so that the history of which students were separated, and
// why, is preserved.
//
// Fields:
//  ID         – primary key identifier.
//  Name       – display name of the group.
//  Reason     – why the students are separated (shown to staff only).
//  IsActive   – inactive groups are ignored by the policy evaluator.
//  ExpiresAt  – optional expiry after which the group no longer applies.
//  CreatedBy  – staff user who created the group.
//  CreatedAt  – timestamp of creation.
//  UpdatedAt  – timestamp of last update.
//  StudentIDs – member student IDs, loaded from encounter_group_members.
type EncounterGroup struct {
    ID         uint64     `json:"id"`                   // encounter_groups.id
    Name       string     `json:"name"`                 // encounter_groups.name
    Reason     string     `json:"reason"`               // encounter_groups.reason
    IsActive   bool       `json:"is_active"`            // encounter_groups.is_active
    ExpiresAt  *time.Time `json:"expires_at,omitempty"` // encounter_groups.expires_at (nullable)
    CreatedBy  uint64     `json:"created_by"`           // encounter_groups.created_by
    CreatedAt  time.Time  `json:"created_at"`           // encounter_groups.created_at
    UpdatedAt  time.Time  `json:"updated_at"`           // encounter_groups.updated_at
    StudentIDs []uint64   `json:"student_ids"`          // encounter_group_members.student_id
}

// AppliesAt reports whether the group should be considered at the
// given instant: it must be active and not past its expiry.
func (g *EncounterGroup) AppliesAt(now time.Time) bool {
    if !g.IsActive {
        return false
    }
    if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
        return false
    }
    return true
}
