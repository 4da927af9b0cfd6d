package policy

import (
    "strings"
    "testing"
    "time"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

// mondayAt returns a fixed Monday (2026-03-02) at the given clock time.
func mondayAt(hour, min int) time.Time {
    return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func baseRequest() Request {
    grade := 9
    division := "North"
    return Request{
        StudentID:      1,
        Grade:          &grade,
        Division:       &division,
        DailyPassLimit: 5,
        DestinationID:  10,
    }
}

func TestEvaluate_Allows(t *testing.T) {
    if d := Evaluate(baseRequest(), Snapshot{}, mondayAt(10, 0)); d != nil {
        t.Fatalf("expected allow, got denial: %v", d)
    }
}

func TestEvaluate_AlreadyOpen(t *testing.T) {
    snap := Snapshot{HasOpenPass: true, DailyCount: 99}
    d := Evaluate(baseRequest(), snap, mondayAt(10, 0))
    if d == nil || d.Reason != ReasonAlreadyOpen {
        t.Fatalf("expected already_open, got %v", d)
    }
}

func TestEvaluate_QuotaBoundary(t *testing.T) {
    req := baseRequest()
    req.DailyPassLimit = 3

    if d := Evaluate(req, Snapshot{DailyCount: 2}, mondayAt(10, 0)); d != nil {
        t.Fatalf("count below limit should pass, got %v", d)
    }
    d := Evaluate(req, Snapshot{DailyCount: 3}, mondayAt(10, 0))
    if d == nil || d.Reason != ReasonQuota {
        t.Fatalf("count at limit should deny with quota, got %v", d)
    }
}

func TestEvaluate_NoFlyInclusiveBounds(t *testing.T) {
    w := &model.NoFlyWindow{
        Name:       "second period",
        StartTime:  "09:00",
        EndTime:    "09:45",
        DaysOfWeek: []int{1}, // Monday
        IsActive:   true,
    }
    snap := Snapshot{Windows: []*model.NoFlyWindow{w}}

    for _, tc := range []struct {
        at   time.Time
        deny bool
    }{
        {mondayAt(8, 59), false},
        {mondayAt(9, 0), true},  // start is inclusive
        {mondayAt(9, 45), true}, // end is inclusive
        {mondayAt(9, 46), false},
    } {
        d := Evaluate(baseRequest(), snap, tc.at)
        if tc.deny && (d == nil || d.Reason != ReasonNoFly) {
            t.Errorf("at %v expected no_fly denial, got %v", tc.at, d)
        }
        if !tc.deny && d != nil {
            t.Errorf("at %v expected allow, got %v", tc.at, d)
        }
    }
}

func TestEvaluate_NoFlyWrapsMidnight(t *testing.T) {
    w := &model.NoFlyWindow{
        Name:       "overnight lockdown",
        StartTime:  "23:30",
        EndTime:    "00:15",
        DaysOfWeek: []int{1}, // Monday evening into Tuesday morning
        IsActive:   true,
    }
    snap := Snapshot{Windows: []*model.NoFlyWindow{w}}

    // Monday 23:45 is inside the head of the window.
    if d := Evaluate(baseRequest(), snap, mondayAt(23, 45)); d == nil || d.Reason != ReasonNoFly {
        t.Fatalf("Monday 23:45 should be denied, got %v", d)
    }
    // Tuesday 00:10 belongs to Monday's wrap tail.
    tuesday := mondayAt(0, 10).AddDate(0, 0, 1)
    if d := Evaluate(baseRequest(), snap, tuesday); d == nil || d.Reason != ReasonNoFly {
        t.Fatalf("Tuesday 00:10 should be denied via Monday's tail, got %v", d)
    }
    // Wednesday 00:10 is not covered: Tuesday is not listed.
    wednesday := mondayAt(0, 10).AddDate(0, 0, 2)
    if d := Evaluate(baseRequest(), snap, wednesday); d != nil {
        t.Fatalf("Wednesday 00:10 should be allowed, got %v", d)
    }
}

func TestEvaluate_NoFlyScoping(t *testing.T) {
    w := &model.NoFlyWindow{
        Name:              "grade 12 exams",
        StartTime:         "08:00",
        EndTime:           "16:00",
        DaysOfWeek:        []int{1, 2, 3, 4, 5},
        AffectedGrades:    []int{12},
        AffectedDivisions: []string{"North"},
        IsActive:          true,
    }
    snap := Snapshot{Windows: []*model.NoFlyWindow{w}}

    // Grade 9 student in North is out of scope.
    if d := Evaluate(baseRequest(), snap, mondayAt(10, 0)); d != nil {
        t.Fatalf("grade 9 should be out of scope, got %v", d)
    }

    req := baseRequest()
    twelve := 12
    req.Grade = &twelve
    if d := Evaluate(req, snap, mondayAt(10, 0)); d == nil || d.Reason != ReasonNoFly {
        t.Fatalf("grade 12 in North should be denied, got %v", d)
    }

    // Scoped window never matches a student with no division on file.
    req.Division = nil
    if d := Evaluate(req, snap, mondayAt(10, 0)); d != nil {
        t.Fatalf("student without division should be out of scope, got %v", d)
    }
}

func TestEvaluate_EncounterConflict(t *testing.T) {
    g := &model.EncounterGroup{
        ID:         7,
        Name:       "keep apart",
        Reason:     "counselor request",
        IsActive:   true,
        StudentIDs: []uint64{1, 2},
    }
    snap := Snapshot{
        Groups:      []*model.EncounterGroup{g},
        OpenHolders: []uint64{2},
    }
    d := Evaluate(baseRequest(), snap, mondayAt(10, 0))
    if d == nil || d.Reason != ReasonEncounterConflict {
        t.Fatalf("expected encounter_conflict, got %v", d)
    }
    // The denial must not leak which student is out.
    if strings.Contains(d.Detail, "2") {
        t.Fatalf("denial detail leaks holder id: %q", d.Detail)
    }
}

func TestEvaluate_Capacity(t *testing.T) {
    capacity := 3
    snap := Snapshot{DestinationCapacity: &capacity, ActiveAtDestination: 3}
    d := Evaluate(baseRequest(), snap, mondayAt(10, 0))
    if d == nil || d.Reason != ReasonCapacity {
        t.Fatalf("expected capacity denial, got %v", d)
    }

    snap.ActiveAtDestination = 2
    if d := Evaluate(baseRequest(), snap, mondayAt(10, 0)); d != nil {
        t.Fatalf("below capacity should pass, got %v", d)
    }

    // nil capacity means unlimited.
    snap = Snapshot{ActiveAtDestination: 1000}
    if d := Evaluate(baseRequest(), snap, mondayAt(10, 0)); d != nil {
        t.Fatalf("nil capacity should pass, got %v", d)
    }
}

func TestEvaluate_CheckOrder(t *testing.T) {
    // Everything wrong at once: the open-pass check must win.
    capacity := 1
    w := &model.NoFlyWindow{
        Name: "all day", StartTime: "00:00", EndTime: "23:59",
        DaysOfWeek: []int{1, 2, 3, 4, 5, 6, 7}, IsActive: true,
    }
    snap := Snapshot{
        HasOpenPass:         true,
        DailyCount:          99,
        Windows:             []*model.NoFlyWindow{w},
        OpenHolders:         []uint64{2},
        DestinationCapacity: &capacity,
        ActiveAtDestination: 5,
    }
    d := Evaluate(baseRequest(), snap, mondayAt(10, 0))
    if d == nil || d.Reason != ReasonAlreadyOpen {
        t.Fatalf("already_open must be reported first, got %v", d)
    }

    snap.HasOpenPass = false
    d = Evaluate(baseRequest(), snap, mondayAt(10, 0))
    if d == nil || d.Reason != ReasonQuota {
        t.Fatalf("quota must be reported second, got %v", d)
    }
}

func TestValidClock(t *testing.T) {
    for _, good := range []string{"00:00", "23:59", "07:05", " 09:30 "} {
        if !ValidClock(good) {
            t.Errorf("%q should be valid", good)
        }
    }
    for _, bad := range []string{"", "24:00", "12:60", "noon", "1230", "12:3a"} {
        if ValidClock(bad) {
            t.Errorf("%q should be invalid", bad)
        }
    }
}
