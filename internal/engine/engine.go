// Package engine implements the pass admission and lifecycle engine.
// It is the only component permitted to mutate a pass's status: every
// transition is a conditional update keyed on the previously observed
// status, and every successful transition is followed by an audit
// append and a best-effort event publication.  Publication failures
// never roll back a committed transition.
package engine

import (
    "context"
    "errors"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/hall-pass-service/internal/audit"
    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/policy"
    "github.com/iliyamo/hall-pass-service/internal/realtime"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// PassStore is the engine's view of the pass table.  The MySQL
// repository satisfies it in production; tests use an in-memory
// implementation with the same conditional-update semantics.
type PassStore interface {
    Create(ctx context.Context, p *model.Pass) error
    GetByID(ctx context.Context, id uint64) (*model.Pass, error)
    UpdateStatus(ctx context.Context, id uint64, from, to model.PassStatus, stamp repository.StatusStamp) (*model.Pass, error)
    MarkOvertime(ctx context.Context, id uint64, now time.Time) (*model.Pass, error)
    HasOpenPass(ctx context.Context, studentID uint64) (bool, error)
    GetOpenByStudent(ctx context.Context, studentID uint64) (*model.Pass, error)
    CountRequestedSince(ctx context.Context, studentID uint64, since time.Time) (int, error)
    OpenPassHolders(ctx context.Context, studentIDs []uint64) ([]uint64, error)
    CountActiveToDestination(ctx context.Context, destinationID uint64) (int, error)
    ListActive(ctx context.Context, limit int) ([]*model.Pass, error)
    ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.Pass, error)
}

// StudentDirectory resolves the policy attributes of a requesting
// student.  Satisfied by *repository.UserRepo.
type StudentDirectory interface {
    GetStudent(ctx context.Context, id uint64) (model.User, error)
}

// LocationDirectory resolves pass origins and destinations.
// Satisfied by *repository.LocationRepo.
type LocationDirectory interface {
    GetByID(ctx context.Context, id uint64) (*model.Location, error)
}

// GroupSource supplies the active encounter groups containing a
// student.  Satisfied by *repository.EncounterGroupRepo.
type GroupSource interface {
    ListActiveForStudent(ctx context.Context, studentID uint64, now time.Time) ([]*model.EncounterGroup, error)
}

// WindowSource supplies the active no-fly windows.  Satisfied by
// *repository.NoFlyRepo.
type WindowSource interface {
    ListActive(ctx context.Context) ([]*model.NoFlyWindow, error)
}

// EventSink receives the event published after every transition.  The
// realtime hub and the broker notifier both implement it; each sink
// must return quickly and swallow its own failures.
type EventSink interface {
    Publish(rooms []string, ev realtime.Event)
}

// Auditor records the immutable transition trail.  Satisfied by
// *audit.Trail.
type Auditor interface {
    Record(e audit.Entry)
}

// Config carries the engine's policy parameters.  They are
// configuration, not constants: deployments tune them per school.
type Config struct {
    // DefaultTimeLimitMinutes applies when neither the request nor the
    // destination specifies a time limit.
    DefaultTimeLimitMinutes int
    // MaxTimeLimitMinutes is the ceiling on any requested time limit.
    MaxTimeLimitMinutes int
    // PendingExpiry is how long an unapproved pending pass lives
    // before the sweep (or a lazy read) expires it.
    PendingExpiry time.Duration
    // StoreTimeout bounds each snapshot read and conditional write.
    StoreTimeout time.Duration
}

// Engine owns the pass state machine.
type Engine struct {
    passes    PassStore
    students  StudentDirectory
    locations LocationDirectory
    groups    GroupSource
    windows   WindowSource
    sinks     []EventSink
    auditor   Auditor
    cfg       Config
    log       *zap.Logger
    locks     *studentLocks
    now       func() time.Time
}

// Deps bundles the engine's collaborators.
type Deps struct {
    Passes    PassStore
    Students  StudentDirectory
    Locations LocationDirectory
    Groups    GroupSource
    Windows   WindowSource
    Sinks     []EventSink
    Auditor   Auditor
    Logger    *zap.Logger
}

// New constructs an Engine.  All collaborators must be non-nil.
func New(d Deps, cfg Config) *Engine {
    if d.Passes == nil || d.Students == nil || d.Locations == nil ||
        d.Groups == nil || d.Windows == nil || d.Auditor == nil || d.Logger == nil {
        panic("nil dependency passed to engine.New")
    }
    if cfg.DefaultTimeLimitMinutes <= 0 {
        cfg.DefaultTimeLimitMinutes = 5
    }
    if cfg.MaxTimeLimitMinutes <= 0 {
        cfg.MaxTimeLimitMinutes = 60
    }
    if cfg.PendingExpiry <= 0 {
        cfg.PendingExpiry = 15 * time.Minute
    }
    if cfg.StoreTimeout <= 0 {
        cfg.StoreTimeout = 3 * time.Second
    }
    return &Engine{
        passes:    d.Passes,
        students:  d.Students,
        locations: d.Locations,
        groups:    d.Groups,
        windows:   d.Windows,
        sinks:     d.Sinks,
        auditor:   d.Auditor,
        cfg:       cfg,
        log:       d.Logger,
        locks:     newStudentLocks(),
        now:       func() time.Time { return time.Now().UTC() },
    }
}

// SetClock replaces the engine's time source.  Tests use it to pin
// no-fly and expiry evaluation to fixed instants.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// PassRequest is a candidate admission from a student.
type PassRequest struct {
    StudentID        uint64
    OriginID         uint64
    DestinationID    uint64
    TimeLimitMinutes int // 0 means use the destination's default
    Notes            *string
}

// Request admits a new pass or returns why it was denied.  On policy
// denial the returned error is a *policy.Denial and no record is
// created.  Admission holds a lock over the requesting student and
// every member of their active encounter groups from snapshot read
// through insert, so two members of a shared group can never both be
// evaluated as conflict-free; the store's unique open-slot key
// backstops the single-open-pass rule besides.
func (e *Engine) Request(ctx context.Context, req PassRequest) (*model.Pass, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    student, err := e.students.GetStudent(ctx, req.StudentID)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return nil, ErrInvalidRequest
        }
        return nil, e.storeErr("load student", err)
    }
    origin, err := e.locations.GetByID(ctx, req.OriginID)
    if err != nil {
        if errors.Is(err, repository.ErrLocationNotFound) {
            return nil, ErrInvalidRequest
        }
        return nil, e.storeErr("load origin", err)
    }
    dest, err := e.locations.GetByID(ctx, req.DestinationID)
    if err != nil {
        if errors.Is(err, repository.ErrLocationNotFound) {
            return nil, ErrInvalidRequest
        }
        return nil, e.storeErr("load destination", err)
    }
    if !dest.IsActive {
        return nil, ErrInvalidRequest
    }

    limit := req.TimeLimitMinutes
    if limit == 0 {
        limit = dest.DefaultTimeLimitMinutes
    }
    if limit == 0 {
        limit = e.cfg.DefaultTimeLimitMinutes
    }
    maxLimit := e.cfg.MaxTimeLimitMinutes
    if student.PassTimeLimitMinutes > 0 && student.PassTimeLimitMinutes < maxLimit {
        maxLimit = student.PassTimeLimitMinutes
    }
    if limit < 1 || limit > maxLimit {
        return nil, ErrInvalidRequest
    }

    groups, err := e.groups.ListActiveForStudent(ctx, req.StudentID, now)
    if err != nil {
        return nil, e.denyUnavailable("load encounter groups", err)
    }
    members := []uint64{req.StudentID}
    for _, g := range groups {
        members = append(members, g.StudentIDs...)
    }
    release := e.locks.acquire(members)
    defer release()

    snap, denial := e.snapshot(ctx, student, dest, groups, now)
    if denial != nil {
        return nil, denial
    }
    if d := policy.Evaluate(policy.Request{
        StudentID:      student.ID,
        Grade:          student.Grade,
        Division:       student.Division,
        DailyPassLimit: student.DailyPassLimit,
        DestinationID:  dest.ID,
    }, *snap, now); d != nil {
        return nil, d
    }

    p := &model.Pass{
        StudentID:        student.ID,
        OriginID:         origin.ID,
        DestinationID:    dest.ID,
        Status:           model.StatusPending,
        RequestedAt:      now,
        TimeLimitMinutes: limit,
        Notes:            req.Notes,
    }
    eventType := realtime.EventPassCreated
    if !dest.RequiresApproval {
        // Destinations without approval skip the pending state: the
        // pass activates immediately and the clock starts now.
        departed := now
        p.Status = model.StatusActive
        p.DepartedAt = &departed
        eventType = realtime.EventPassActive
    }
    if err := e.passes.Create(ctx, p); err != nil {
        if errors.Is(err, repository.ErrOpenPassExists) {
            // A concurrent request won the open-slot key; surface it
            // as the ordinary single-open-pass denial.
            return nil, &policy.Denial{
                Reason: policy.ReasonAlreadyOpen,
                Detail: "you already have an open pass; end it before requesting a new one",
            }
        }
        return nil, e.storeErr("create pass", err)
    }

    e.log.Info("pass admitted",
        zap.Uint64("pass_id", p.ID),
        zap.Uint64("student_id", p.StudentID),
        zap.String("status", string(p.Status)))
    e.record(p.ID, student.ID, "request", "", p.Status, now)
    e.publish(eventType, p, now)
    return p, nil
}

// snapshot reads the policy inputs under the admission lock.  Any
// read failure is a deny with the distinguishable unavailable reason.
func (e *Engine) snapshot(ctx context.Context, student model.User, dest *model.Location, groups []*model.EncounterGroup, now time.Time) (*policy.Snapshot, *policy.Denial) {
    hasOpen, err := e.passes.HasOpenPass(ctx, student.ID)
    if err != nil {
        return nil, e.denyUnavailable("check open pass", err)
    }
    dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
    dailyCount, err := e.passes.CountRequestedSince(ctx, student.ID, dayStart)
    if err != nil {
        return nil, e.denyUnavailable("count daily passes", err)
    }
    windows, err := e.windows.ListActive(ctx)
    if err != nil {
        return nil, e.denyUnavailable("load no-fly windows", err)
    }
    others := make([]uint64, 0)
    for _, g := range groups {
        if !g.AppliesAt(now) {
            continue
        }
        for _, id := range g.StudentIDs {
            if id != student.ID {
                others = append(others, id)
            }
        }
    }
    holders := []uint64{}
    if len(others) > 0 {
        holders, err = e.passes.OpenPassHolders(ctx, others)
        if err != nil {
            return nil, e.denyUnavailable("check encounter conflicts", err)
        }
    }
    activeAtDest := 0
    if dest.MaxCapacity != nil {
        activeAtDest, err = e.passes.CountActiveToDestination(ctx, dest.ID)
        if err != nil {
            return nil, e.denyUnavailable("count destination occupancy", err)
        }
    }
    return &policy.Snapshot{
        HasOpenPass:         hasOpen,
        DailyCount:          dailyCount,
        Windows:             windows,
        Groups:              groups,
        OpenHolders:         holders,
        DestinationCapacity: dest.MaxCapacity,
        ActiveAtDestination: activeAtDest,
    }, nil
}

// bound derives a context limited to the configured store timeout.
// Each public engine method derives one at entry so a dead store
// cannot hold an admission or a transition open indefinitely.
func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

func (e *Engine) storeErr(op string, err error) error {
    e.log.Error("store operation failed", zap.String("op", op), zap.Error(err))
    return ErrStoreUnavailable
}

func (e *Engine) denyUnavailable(op string, err error) *policy.Denial {
    e.log.Error("admission snapshot failed", zap.String("op", op), zap.Error(err))
    return &policy.Denial{
        Reason: policy.ReasonUnavailable,
        Detail: "pass checks are temporarily unavailable, try again shortly",
    }
}

// record appends an audit entry, fire-and-forget.
func (e *Engine) record(passID, actorID uint64, action string, oldStatus, newStatus model.PassStatus, when time.Time) {
    e.auditor.Record(audit.Entry{
        PassID:    passID,
        ActorID:   actorID,
        Action:    action,
        OldStatus: string(oldStatus),
        NewStatus: string(newStatus),
        When:      when,
    })
}

// publish fans the event out to every sink.  Sinks are non-blocking
// or internally bounded; a failed or slow sink never delays the
// transition that produced the event.
func (e *Engine) publish(eventType string, p *model.Pass, at time.Time) {
    ev := realtime.NewEvent(eventType, p, at)
    rooms := realtime.PassRooms(p)
    for _, sink := range e.sinks {
        sink.Publish(rooms, ev)
    }
}
