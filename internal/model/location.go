package model

import "time"

// Location represents a row in the `locations` table.  Locations are
// the origins and destinations of hall passes: classrooms, bathrooms,
// offices, the nurse and so on.  The pass engine reads them for policy
// attributes (capacity, approval requirement, default time limit) but
// never mutates them; maintenance happens through the admin endpoints.
//
// Fields:
//  ID                      – primary key identifier.
//  Name                    – display name, unique per school.
//  Building                – building name (nullable).
//  RoomNumber              – room number (nullable).
//  Type                    – kind of location (classroom, bathroom, office,
//                            library, gym, cafeteria, nurse, counselor, other).
//  MaxCapacity             – maximum concurrent active passes targeting the
//                            location; null means unlimited.
//  RequiresApproval        – when false, requested passes skip the pending
//                            state and activate immediately.
//  DefaultTimeLimitMinutes – time limit applied when a request does not
//                            specify its own.
//  IsActive                – inactive locations cannot be pass destinations.
//  CreatedAt               – timestamp of creation.
//  UpdatedAt               – timestamp of last update.
type Location struct {
    ID                      uint64    `json:"id"`                     // locations.id
    Name                    string    `json:"name"`                   // locations.name
    Building                *string   `json:"building,omitempty"`     // locations.building (nullable)
    RoomNumber              *string   `json:"room_number,omitempty"`  // locations.room_number (nullable)
    Type                    string    `json:"type"`                   // locations.type
    MaxCapacity             *int      `json:"max_capacity,omitempty"` // locations.max_capacity (nullable)
    RequiresApproval        bool      `json:"requires_approval"`      // locations.requires_approval
    DefaultTimeLimitMinutes int       `json:"default_time_limit_minutes"` // locations.default_time_limit_minutes
    IsActive                bool      `json:"is_active"`              // locations.is_active
    CreatedAt               time.Time `json:"created_at"`             // locations.created_at
    UpdatedAt               time.Time `json:"updated_at"`             // locations.updated_at
}
