// Package policy implements the admission rules for hall passes as a
// pure decision function.  The evaluator never touches the database
// or the clock itself: the engine assembles a Snapshot from the store
// and passes the current time in, which keeps every rule testable
// with injected fixtures.
package policy

import (
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

// Reason identifies why an admission was denied.  The values are part
// of the API contract: clients key their user-facing messaging off
// them, so they must not change.
type Reason string

const (
    ReasonAlreadyOpen       Reason = "already_open"
    ReasonQuota             Reason = "quota"
    ReasonNoFly             Reason = "no_fly"
    ReasonEncounterConflict Reason = "encounter_conflict"
    ReasonCapacity          Reason = "capacity"

    // ReasonUnavailable is not produced by Evaluate itself; the engine
    // returns it when the snapshot could not be read in time.  A
    // timed-out check is always a deny, never an allow.
    ReasonUnavailable Reason = "unavailable"
)

// Denial is the expected, user-facing outcome of a failed admission
// check.  It implements error so the engine can return it directly.
type Denial struct {
    Reason Reason `json:"reason"`
    Detail string `json:"detail,omitempty"`
}

func (d *Denial) Error() string {
    if d.Detail == "" {
        return "pass denied: " + string(d.Reason)
    }
    return "pass denied: " + string(d.Reason) + ": " + d.Detail
}

// Request is the candidate admission under evaluation.
type Request struct {
    StudentID      uint64
    Grade          *int
    Division       *string
    DailyPassLimit int
    DestinationID  uint64
}

// Snapshot is the engine's consistent view of the state the rules
// depend on, read while the admission lock for the student's
// encounter groups is held.
type Snapshot struct {
    HasOpenPass         bool
    DailyCount          int
    Windows             []*model.NoFlyWindow    // active no-fly windows
    Groups              []*model.EncounterGroup // active groups containing the student
    OpenHolders         []uint64                // group members currently holding open passes
    DestinationCapacity *int                    // nil means unlimited
    ActiveAtDestination int
}

// Evaluate runs the admission checks in their contractual order and
// returns nil when the pass may be created, or the first failing
// check's Denial.  The checks short-circuit: a student over quota
// during a no-fly window sees the quota denial.
func Evaluate(req Request, snap Snapshot, now time.Time) *Denial {
    if snap.HasOpenPass {
        return &Denial{
            Reason: ReasonAlreadyOpen,
            Detail: "you already have an open pass; end it before requesting a new one",
        }
    }
    if req.DailyPassLimit >= 0 && snap.DailyCount >= req.DailyPassLimit {
        return &Denial{
            Reason: ReasonQuota,
            Detail: fmt.Sprintf("daily pass limit of %d reached", req.DailyPassLimit),
        }
    }
    for _, w := range snap.Windows {
        if !windowApplies(w, req) {
            continue
        }
        if windowContains(w, now) {
            detail := w.Name
            if w.Description != nil && *w.Description != "" {
                detail += ": " + *w.Description
            }
            return &Denial{Reason: ReasonNoFly, Detail: detail}
        }
    }
    if len(snap.OpenHolders) > 0 {
        // Holder IDs are deliberately not exposed to students; only the
        // group reasons staff entered are echoed back.
        reasons := make([]string, 0, len(snap.Groups))
        for _, g := range snap.Groups {
            if g.AppliesAt(now) {
                reasons = append(reasons, g.Reason)
            }
        }
        return &Denial{
            Reason: ReasonEncounterConflict,
            Detail: "another student you must not encounter is currently out: " + strings.Join(reasons, ", "),
        }
    }
    if snap.DestinationCapacity != nil && snap.ActiveAtDestination >= *snap.DestinationCapacity {
        return &Denial{
            Reason: ReasonCapacity,
            Detail: "destination is currently at capacity, try again later",
        }
    }
    return nil
}

// windowApplies reports whether the window's division/grade scope
// covers the requesting student.  Empty scopes cover everyone.
func windowApplies(w *model.NoFlyWindow, req Request) bool {
    if len(w.AffectedDivisions) > 0 {
        if req.Division == nil {
            return false
        }
        found := false
        for _, d := range w.AffectedDivisions {
            if strings.EqualFold(d, *req.Division) {
                found = true
                break
            }
        }
        if !found {
            return false
        }
    }
    if len(w.AffectedGrades) > 0 {
        if req.Grade == nil {
            return false
        }
        found := false
        for _, g := range w.AffectedGrades {
            if g == *req.Grade {
                found = true
                break
            }
        }
        if !found {
            return false
        }
    }
    return true
}

// windowContains reports whether the instant falls inside the window.
// Both boundaries are inclusive.  A window whose end precedes its
// start wraps past midnight: 23:30–00:15 on Monday covers late Monday
// evening and the first minutes of Tuesday.
func windowContains(w *model.NoFlyWindow, now time.Time) bool {
    startMin, ok := parseClock(w.StartTime)
    if !ok {
        return false
    }
    endMin, ok := parseClock(w.EndTime)
    if !ok {
        return false
    }
    nowMin := now.Hour()*60 + now.Minute()
    today := model.ISOWeekday(now.Weekday())
    yesterday := model.ISOWeekday(now.AddDate(0, 0, -1).Weekday())

    if startMin <= endMin {
        return dayListed(w.DaysOfWeek, today) && nowMin >= startMin && nowMin <= endMin
    }
    // Wrapping window: the early-morning tail belongs to the previous
    // day's entry in DaysOfWeek.
    if nowMin >= startMin {
        return dayListed(w.DaysOfWeek, today)
    }
    if nowMin <= endMin {
        return dayListed(w.DaysOfWeek, yesterday)
    }
    return false
}

func dayListed(days []int, day int) bool {
    for _, d := range days {
        if d == day {
            return true
        }
    }
    return false
}

// ValidClock reports whether s is a well-formed "HH:MM" clock value.
// Window administration validates inputs with it so malformed times
// are rejected at creation instead of silently never matching.
func ValidClock(s string) bool {
    _, ok := parseClock(s)
    return ok
}

// WindowInEffect reports whether the window covers the given instant,
// ignoring division and grade scoping.  Staff tooling uses it to show
// which windows are currently in force.
func WindowInEffect(w *model.NoFlyWindow, now time.Time) bool {
    return windowContains(w, now)
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
    parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
    if len(parts) != 2 {
        return 0, false
    }
    h, err := strconv.Atoi(parts[0])
    if err != nil || h < 0 || h > 23 {
        return 0, false
    }
    m, err := strconv.Atoi(parts[1])
    if err != nil || m < 0 || m > 59 {
        return 0, false
    }
    return h*60 + m, true
}
