package model

import "time"

// NoFlyWindow represents a row in the `no_fly_windows` table.  A
// window blocks new pass requests during a recurring time-of-day
// range on selected weekdays, e.g. passing periods or assemblies.
// Windows may be scoped to divisions and/or grades; an empty scope
// applies to every student.
//
// Fields:
//  ID                – primary key identifier.
//  Name              – display name (e.g. "Morning passing period").
//  StartTime         – start of the window as "HH:MM" local time.
//  EndTime           – end of the window as "HH:MM"; an end before the
//                      start wraps past midnight.
//  DaysOfWeek        – ISO weekdays the window applies to (1=Monday ... 7=Sunday).
//  AffectedDivisions – divisions the window applies to; empty means all.
//  AffectedGrades    – grades the window applies to; empty means all.
//  IsActive          – inactive windows are ignored by the policy evaluator.
//  Description       – optional explanation shown with denials (nullable).
//  CreatedBy         – staff user who created the window.
//  CreatedAt         – timestamp of creation.
//  UpdatedAt         – timestamp of last update.
type NoFlyWindow struct {
    ID                uint64    `json:"id"`                    // no_fly_windows.id
    Name              string    `json:"name"`                  // no_fly_windows.name
    StartTime         string    `json:"start_time"`            // no_fly_windows.start_time ("HH:MM")
    EndTime           string    `json:"end_time"`              // no_fly_windows.end_time ("HH:MM")
    DaysOfWeek        []int     `json:"days_of_week"`          // no_fly_windows.days_of_week (CSV in DB)
    AffectedDivisions []string  `json:"affected_divisions,omitempty"` // no_fly_windows.affected_divisions (CSV, nullable)
    AffectedGrades    []int     `json:"affected_grades,omitempty"`    // no_fly_windows.affected_grades (CSV, nullable)
    IsActive          bool      `json:"is_active"`             // no_fly_windows.is_active
    Description       *string   `json:"description,omitempty"` // no_fly_windows.description (nullable)
    CreatedBy         uint64    `json:"created_by"`            // no_fly_windows.created_by
    CreatedAt         time.Time `json:"created_at"`            // no_fly_windows.created_at
    UpdatedAt         time.Time `json:"updated_at"`            // no_fly_windows.updated_at
}

// ISOWeekday converts a time.Weekday to the 1=Monday ... 7=Sunday
// numbering used by DaysOfWeek.
func ISOWeekday(d time.Weekday) int {
    if d == time.Sunday {
        return 7
    }
    return int(d)
}
