package engine

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/hall-pass-service/internal/audit"
    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/policy"
    "github.com/iliyamo/hall-pass-service/internal/realtime"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// ----- in-memory fakes -----

// memStore mimics the MySQL pass repository, including the
// conditional-update and unique-open-slot semantics the engine's
// concurrency guarantees rest on.
type memStore struct {
    mu     sync.Mutex
    nextID uint64
    passes map[uint64]*model.Pass
    err    error // when set, every method fails with it
}

func newMemStore() *memStore {
    return &memStore{passes: make(map[uint64]*model.Pass)}
}

func (s *memStore) clone(p *model.Pass) *model.Pass {
    cp := *p
    return &cp
}

func (s *memStore) openFor(studentID uint64) *model.Pass {
    for _, p := range s.passes {
        if p.StudentID == studentID && !p.Status.IsTerminal() {
            return p
        }
    }
    return nil
}

func (s *memStore) Create(ctx context.Context, p *model.Pass) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return s.err
    }
    if s.openFor(p.StudentID) != nil {
        return repository.ErrOpenPassExists
    }
    s.nextID++
    p.ID = s.nextID
    s.passes[p.ID] = s.clone(p)
    return nil
}

func (s *memStore) GetByID(ctx context.Context, id uint64) (*model.Pass, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return nil, s.err
    }
    p, ok := s.passes[id]
    if !ok {
        return nil, repository.ErrPassNotFound
    }
    return s.clone(p), nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id uint64, from, to model.PassStatus, stamp repository.StatusStamp) (*model.Pass, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return nil, s.err
    }
    p, ok := s.passes[id]
    if !ok {
        return nil, repository.ErrPassNotFound
    }
    if p.Status != from {
        return nil, repository.ErrStatusConflict
    }
    p.Status = to
    if stamp.ApprovedAt != nil {
        p.ApprovedAt = stamp.ApprovedAt
    }
    if stamp.ApprovedBy != nil {
        p.ApprovedBy = stamp.ApprovedBy
    }
    if stamp.DepartedAt != nil {
        p.DepartedAt = stamp.DepartedAt
    }
    if stamp.ReturnedAt != nil {
        p.ReturnedAt = stamp.ReturnedAt
    }
    return s.clone(p), nil
}

func (s *memStore) MarkOvertime(ctx context.Context, id uint64, now time.Time) (*model.Pass, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return nil, s.err
    }
    p, ok := s.passes[id]
    if !ok {
        return nil, repository.ErrPassNotFound
    }
    if p.Status != model.StatusActive || p.OvertimeNotifiedAt != nil {
        return nil, repository.ErrStatusConflict
    }
    t := now
    p.IsOvertime = true
    p.OvertimeNotifiedAt = &t
    return s.clone(p), nil
}

func (s *memStore) HasOpenPass(ctx context.Context, studentID uint64) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return false, s.err
    }
    return s.openFor(studentID) != nil, nil
}

func (s *memStore) GetOpenByStudent(ctx context.Context, studentID uint64) (*model.Pass, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return nil, s.err
    }
    if p := s.openFor(studentID); p != nil {
        return s.clone(p), nil
    }
    return nil, repository.ErrPassNotFound
}

func (s *memStore) CountRequestedSince(ctx context.Context, studentID uint64, since time.Time) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return 0, s.err
    }
    n := 0
    for _, p := range s.passes {
        if p.StudentID == studentID && !p.RequestedAt.Before(since) {
            n++
        }
    }
    return n, nil
}

func (s *memStore) OpenPassHolders(ctx context.Context, studentIDs []uint64) ([]uint64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return nil, s.err
    }
    holders := []uint64{}
    for _, id := range studentIDs {
        if s.openFor(id) != nil {
            holders = append(holders, id)
        }
    }
    return holders, nil
}

func (s *memStore) CountActiveToDestination(ctx context.Context, destinationID uint64) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return 0, s.err
    }
    n := 0
    for _, p := range s.passes {
        if p.DestinationID == destinationID && p.Status == model.StatusActive {
            n++
        }
    }
    return n, nil
}

func (s *memStore) ListActive(ctx context.Context, limit int) ([]*model.Pass, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return nil, s.err
    }
    out := []*model.Pass{}
    for _, p := range s.passes {
        if p.Status == model.StatusActive {
            out = append(out, s.clone(p))
        }
    }
    return out, nil
}

func (s *memStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.Pass, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return nil, s.err
    }
    out := []*model.Pass{}
    for _, p := range s.passes {
        if p.Status == model.StatusPending && p.RequestedAt.Before(cutoff) {
            out = append(out, s.clone(p))
        }
    }
    return out, nil
}

type memDirectory struct {
    students map[uint64]model.User
}

func (d *memDirectory) GetStudent(ctx context.Context, id uint64) (model.User, error) {
    u, ok := d.students[id]
    if !ok || u.Role != model.RoleStudent {
        return model.User{}, repository.ErrUserNotFound
    }
    return u, nil
}

type memLocations struct {
    locations map[uint64]*model.Location
}

func (d *memLocations) GetByID(ctx context.Context, id uint64) (*model.Location, error) {
    loc, ok := d.locations[id]
    if !ok {
        return nil, repository.ErrLocationNotFound
    }
    cp := *loc
    return &cp, nil
}

type memGroups struct {
    groups []*model.EncounterGroup
    err    error
}

func (g *memGroups) ListActiveForStudent(ctx context.Context, studentID uint64, now time.Time) ([]*model.EncounterGroup, error) {
    if g.err != nil {
        return nil, g.err
    }
    out := []*model.EncounterGroup{}
    for _, grp := range g.groups {
        if !grp.AppliesAt(now) {
            continue
        }
        for _, id := range grp.StudentIDs {
            if id == studentID {
                out = append(out, grp)
                break
            }
        }
    }
    return out, nil
}

type memWindows struct {
    windows []*model.NoFlyWindow
}

func (w *memWindows) ListActive(ctx context.Context) ([]*model.NoFlyWindow, error) {
    return w.windows, nil
}

// sinkRecorder captures published events for assertions.
type sinkRecorder struct {
    mu     sync.Mutex
    events []realtime.Event
    rooms  [][]string
}

func (r *sinkRecorder) Publish(rooms []string, ev realtime.Event) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.events = append(r.events, ev)
    r.rooms = append(r.rooms, rooms)
}

func (r *sinkRecorder) byType(t string) []realtime.Event {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := []realtime.Event{}
    for _, ev := range r.events {
        if ev.Type == t {
            out = append(out, ev)
        }
    }
    return out
}

type auditRecorder struct {
    mu      sync.Mutex
    entries []audit.Entry
}

func (r *auditRecorder) Record(e audit.Entry) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.entries = append(r.entries, e)
}

// ----- fixture -----

const (
    originID   = 1
    libraryID  = 2 // requires approval
    restroomID = 3 // no approval, auto-activates
)

type fixture struct {
    store   *memStore
    groups  *memGroups
    windows *memWindows
    sink    *sinkRecorder
    trail   *auditRecorder
    eng     *Engine
    now     time.Time
}

func newFixture(t *testing.T, studentIDs ...uint64) *fixture {
    t.Helper()
    students := make(map[uint64]model.User, len(studentIDs))
    for _, id := range studentIDs {
        grade := 9
        students[id] = model.User{
            ID: id, Role: model.RoleStudent, IsActive: true,
            Grade: &grade, DailyPassLimit: 5,
        }
    }
    three := 3
    locations := map[uint64]*model.Location{
        originID: {ID: originID, Name: "Room 101", RequiresApproval: true, IsActive: true},
        libraryID: {
            ID: libraryID, Name: "Library", RequiresApproval: true,
            DefaultTimeLimitMinutes: 10, MaxCapacity: &three, IsActive: true,
        },
        restroomID: {
            ID: restroomID, Name: "Restroom", RequiresApproval: false,
            DefaultTimeLimitMinutes: 5, IsActive: true,
        },
    }
    f := &fixture{
        store:   newMemStore(),
        groups:  &memGroups{},
        windows: &memWindows{},
        sink:    &sinkRecorder{},
        trail:   &auditRecorder{},
        now:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
    }
    f.eng = New(Deps{
        Passes:    f.store,
        Students:  &memDirectory{students: students},
        Locations: &memLocations{locations: locations},
        Groups:    f.groups,
        Windows:   f.windows,
        Sinks:     []EventSink{f.sink},
        Auditor:   f.trail,
        Logger:    zap.NewNop(),
    }, Config{
        DefaultTimeLimitMinutes: 5,
        MaxTimeLimitMinutes:     60,
        PendingExpiry:           15 * time.Minute,
        StoreTimeout:            time.Second,
    })
    f.eng.SetClock(func() time.Time { return f.now })
    return f
}

func (f *fixture) request(t *testing.T, studentID, destID uint64) *model.Pass {
    t.Helper()
    p, err := f.eng.Request(context.Background(), PassRequest{
        StudentID: studentID, OriginID: originID, DestinationID: destID,
    })
    if err != nil {
        t.Fatalf("request failed: %v", err)
    }
    return p
}

// ----- tests -----

func TestRequestCreatesPendingPass(t *testing.T) {
    f := newFixture(t, 1)
    p := f.request(t, 1, libraryID)

    if p.Status != model.StatusPending {
        t.Fatalf("expected pending, got %s", p.Status)
    }
    if p.TimeLimitMinutes != 10 {
        t.Fatalf("expected destination default limit 10, got %d", p.TimeLimitMinutes)
    }
    if got := f.sink.byType(realtime.EventPassCreated); len(got) != 1 {
        t.Fatalf("expected one pass_created event, got %d", len(got))
    }
    if len(f.trail.entries) != 1 || f.trail.entries[0].Action != "request" {
        t.Fatalf("expected one request audit entry, got %+v", f.trail.entries)
    }
}

func TestRequestAutoActivatesWithoutApproval(t *testing.T) {
    f := newFixture(t, 1)
    p := f.request(t, 1, restroomID)

    if p.Status != model.StatusActive {
        t.Fatalf("expected active, got %s", p.Status)
    }
    if p.DepartedAt == nil || !p.DepartedAt.Equal(f.now) {
        t.Fatalf("expected departed_at set to now, got %v", p.DepartedAt)
    }
    if got := f.sink.byType(realtime.EventPassActive); len(got) != 1 {
        t.Fatalf("expected one pass_active event, got %d", len(got))
    }
    if got := f.sink.byType(realtime.EventPassCreated); len(got) != 0 {
        t.Fatalf("auto-activation must not also emit pass_created")
    }
}

func TestRequestDeniedWhileOpenPassExists(t *testing.T) {
    f := newFixture(t, 1)
    f.request(t, 1, libraryID)

    _, err := f.eng.Request(context.Background(), PassRequest{
        StudentID: 1, OriginID: originID, DestinationID: restroomID,
    })
    var denial *policy.Denial
    if !errors.As(err, &denial) || denial.Reason != policy.ReasonAlreadyOpen {
        t.Fatalf("expected already_open denial, got %v", err)
    }
}

func TestRequestRejectsUnknownStudentAndLocation(t *testing.T) {
    f := newFixture(t, 1)

    if _, err := f.eng.Request(context.Background(), PassRequest{
        StudentID: 99, OriginID: originID, DestinationID: libraryID,
    }); !errors.Is(err, ErrInvalidRequest) {
        t.Fatalf("unknown student: expected ErrInvalidRequest, got %v", err)
    }
    if _, err := f.eng.Request(context.Background(), PassRequest{
        StudentID: 1, OriginID: originID, DestinationID: 99,
    }); !errors.Is(err, ErrInvalidRequest) {
        t.Fatalf("unknown destination: expected ErrInvalidRequest, got %v", err)
    }
    if _, err := f.eng.Request(context.Background(), PassRequest{
        StudentID: 1, OriginID: originID, DestinationID: libraryID, TimeLimitMinutes: 600,
    }); !errors.Is(err, ErrInvalidRequest) {
        t.Fatalf("excessive limit: expected ErrInvalidRequest, got %v", err)
    }
}

func TestFullLifecycle(t *testing.T) {
    f := newFixture(t, 1)
    p := f.request(t, 1, libraryID)

    approved, err := f.eng.Approve(context.Background(), p.ID, 50)
    if err != nil {
        t.Fatalf("approve: %v", err)
    }
    if approved.Status != model.StatusApproved || approved.ApprovedBy == nil || *approved.ApprovedBy != 50 {
        t.Fatalf("unexpected approved pass: %+v", approved)
    }

    f.now = f.now.Add(2 * time.Minute)
    active, err := f.eng.Depart(context.Background(), p.ID, 1)
    if err != nil {
        t.Fatalf("depart: %v", err)
    }
    if active.Status != model.StatusActive || active.DepartedAt == nil {
        t.Fatalf("unexpected active pass: %+v", active)
    }

    f.now = f.now.Add(4 * time.Minute)
    done, err := f.eng.Complete(context.Background(), p.ID, 1, model.RoleStudent)
    if err != nil {
        t.Fatalf("complete: %v", err)
    }
    if done.Status != model.StatusCompleted || done.ReturnedAt == nil {
        t.Fatalf("unexpected completed pass: %+v", done)
    }

    wantActions := []string{"request", "approve", "depart", "complete"}
    if len(f.trail.entries) != len(wantActions) {
        t.Fatalf("expected %d audit entries, got %d", len(wantActions), len(f.trail.entries))
    }
    for i, action := range wantActions {
        if f.trail.entries[i].Action != action {
            t.Errorf("audit entry %d: expected %s, got %s", i, action, f.trail.entries[i].Action)
        }
    }
}

func TestConcurrentApprovalsSingleWinner(t *testing.T) {
    f := newFixture(t, 1)
    p := f.request(t, 1, libraryID)

    const staff = 20
    var wg sync.WaitGroup
    errs := make([]error, staff)
    for i := 0; i < staff; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            _, errs[i] = f.eng.Approve(context.Background(), p.ID, uint64(100+i))
        }(i)
    }
    wg.Wait()

    wins := 0
    for _, err := range errs {
        switch {
        case err == nil:
            wins++
        case errors.Is(err, ErrInvalidTransition):
        default:
            t.Fatalf("unexpected error: %v", err)
        }
    }
    if wins != 1 {
        t.Fatalf("expected exactly one approval to win, got %d", wins)
    }
    if got := f.sink.byType(realtime.EventPassApproved); len(got) != 1 {
        t.Fatalf("expected one pass_approved event, got %d", len(got))
    }
}

func TestEncounterGroupAdmitsExactlyOne(t *testing.T) {
    ids := []uint64{1, 2, 3, 4, 5}
    f := newFixture(t, ids...)
    f.groups.groups = []*model.EncounterGroup{{
        ID: 7, Name: "rivals", Reason: "counselor request",
        IsActive: true, StudentIDs: ids,
    }}

    var wg sync.WaitGroup
    errs := make([]error, len(ids))
    for i, id := range ids {
        wg.Add(1)
        go func(i int, id uint64) {
            defer wg.Done()
            _, errs[i] = f.eng.Request(context.Background(), PassRequest{
                StudentID: id, OriginID: originID, DestinationID: libraryID,
            })
        }(i, id)
    }
    wg.Wait()

    admitted := 0
    for _, err := range errs {
        if err == nil {
            admitted++
            continue
        }
        var denial *policy.Denial
        if !errors.As(err, &denial) || denial.Reason != policy.ReasonEncounterConflict {
            t.Fatalf("expected encounter_conflict denial, got %v", err)
        }
    }
    if admitted != 1 {
        t.Fatalf("expected exactly one admitted group member, got %d", admitted)
    }
}

func TestSameStudentConcurrentRequestsSingleWinner(t *testing.T) {
    f := newFixture(t, 1)

    const n = 10
    var wg sync.WaitGroup
    errs := make([]error, n)
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            _, errs[i] = f.eng.Request(context.Background(), PassRequest{
                StudentID: 1, OriginID: originID, DestinationID: libraryID,
            })
        }(i)
    }
    wg.Wait()

    wins := 0
    for _, err := range errs {
        if err == nil {
            wins++
            continue
        }
        var denial *policy.Denial
        if !errors.As(err, &denial) || denial.Reason != policy.ReasonAlreadyOpen {
            t.Fatalf("expected already_open denial, got %v", err)
        }
    }
    if wins != 1 {
        t.Fatalf("expected exactly one request to win, got %d", wins)
    }
}

func TestCancelOwnershipAndStates(t *testing.T) {
    f := newFixture(t, 1, 2)
    p := f.request(t, 1, libraryID)

    // Another student cannot cancel it.
    if _, err := f.eng.Cancel(context.Background(), p.ID, 2, model.RoleStudent); !errors.Is(err, repository.ErrForbidden) {
        t.Fatalf("expected ErrForbidden, got %v", err)
    }
    // Staff can.
    cancelled, err := f.eng.Cancel(context.Background(), p.ID, 50, model.RoleStaff)
    if err != nil {
        t.Fatalf("staff cancel: %v", err)
    }
    if cancelled.Status != model.StatusCancelled {
        t.Fatalf("expected cancelled, got %s", cancelled.Status)
    }

    // An active pass cannot be cancelled, only completed or expired.
    p2 := f.request(t, 1, restroomID)
    if _, err := f.eng.Cancel(context.Background(), p2.ID, 1, model.RoleStudent); !errors.Is(err, ErrInvalidTransition) {
        t.Fatalf("expected ErrInvalidTransition for active cancel, got %v", err)
    }
}

func TestDepartRequiresApproval(t *testing.T) {
    f := newFixture(t, 1)
    p := f.request(t, 1, libraryID)

    _, err := f.eng.Depart(context.Background(), p.ID, 1)
    if !errors.Is(err, ErrAwaitingApproval) {
        t.Fatalf("pending pass must report awaiting approval, got %v", err)
    }
    // The specific error still satisfies the general transition check.
    if !errors.Is(err, ErrInvalidTransition) {
        t.Fatalf("awaiting-approval must remain an invalid transition, got %v", err)
    }
}

func TestOpenPassLazyExpiry(t *testing.T) {
    f := newFixture(t, 1)
    p := f.request(t, 1, libraryID)

    // Still inside the approval window.
    open, err := f.eng.OpenPass(context.Background(), 1)
    if err != nil || open == nil || open.ID != p.ID {
        t.Fatalf("expected open pass back, got %v, %v", open, err)
    }

    // Beyond the window the read itself expires the pass.
    f.now = f.now.Add(16 * time.Minute)
    expired, err := f.eng.OpenPass(context.Background(), 1)
    if err != nil {
        t.Fatalf("open pass: %v", err)
    }
    if expired.Status != model.StatusExpired {
        t.Fatalf("expected lazily expired pass, got %s", expired.Status)
    }
    if got := f.sink.byType(realtime.EventPassExpired); len(got) != 1 {
        t.Fatalf("expected one pass_expired event, got %d", len(got))
    }

    // The slot is free again.
    f.request(t, 1, libraryID)
}

func TestSweepOvertimeFlagsOnce(t *testing.T) {
    f := newFixture(t, 1)
    f.request(t, 1, restroomID) // active, 5 minute limit

    // Not yet overdue: elapsed == limit is not overtime.
    f.now = f.now.Add(5 * time.Minute)
    n, err := f.eng.SweepOvertime(context.Background())
    if err != nil || n != 0 {
        t.Fatalf("at the limit should not flag, got n=%d err=%v", n, err)
    }

    f.now = f.now.Add(time.Minute)
    n, err = f.eng.SweepOvertime(context.Background())
    if err != nil || n != 1 {
        t.Fatalf("expected one flagged pass, got n=%d err=%v", n, err)
    }

    // Second run must not flag or publish again.
    n, err = f.eng.SweepOvertime(context.Background())
    if err != nil || n != 0 {
        t.Fatalf("second sweep should be a no-op, got n=%d err=%v", n, err)
    }
    if got := f.sink.byType(realtime.EventPassOvertime); len(got) != 1 {
        t.Fatalf("expected exactly one pass_overtime event, got %d", len(got))
    }
}

func TestSweepPendingExpiry(t *testing.T) {
    f := newFixture(t, 1, 2)
    stale := f.request(t, 1, libraryID)

    f.now = f.now.Add(10 * time.Minute)
    fresh := f.request(t, 2, libraryID)

    f.now = f.now.Add(6 * time.Minute) // stale is 16m old, fresh 6m
    n, err := f.eng.SweepPendingExpiry(context.Background())
    if err != nil || n != 1 {
        t.Fatalf("expected one expired pass, got n=%d err=%v", n, err)
    }
    got, _ := f.store.GetByID(context.Background(), stale.ID)
    if got.Status != model.StatusExpired {
        t.Fatalf("stale pass should be expired, got %s", got.Status)
    }
    got, _ = f.store.GetByID(context.Background(), fresh.ID)
    if got.Status != model.StatusPending {
        t.Fatalf("fresh pass should stay pending, got %s", got.Status)
    }
}

func TestSnapshotFailureDeniesUnavailable(t *testing.T) {
    f := newFixture(t, 1)
    f.store.err = errors.New("connection refused")

    _, err := f.eng.Request(context.Background(), PassRequest{
        StudentID: 1, OriginID: originID, DestinationID: libraryID,
    })
    var denial *policy.Denial
    if !errors.As(err, &denial) || denial.Reason != policy.ReasonUnavailable {
        t.Fatalf("expected unavailable denial, got %v", err)
    }
}

func TestCapacityDenial(t *testing.T) {
    f := newFixture(t, 1, 2, 3, 4)
    // Fill the library (capacity 3) with active passes.
    for _, id := range []uint64{1, 2, 3} {
        p := f.request(t, id, libraryID)
        if _, err := f.eng.Approve(context.Background(), p.ID, 50); err != nil {
            t.Fatalf("approve: %v", err)
        }
        if _, err := f.eng.Depart(context.Background(), p.ID, id); err != nil {
            t.Fatalf("depart: %v", err)
        }
    }

    _, err := f.eng.Request(context.Background(), PassRequest{
        StudentID: 4, OriginID: originID, DestinationID: libraryID,
    })
    var denial *policy.Denial
    if !errors.As(err, &denial) || denial.Reason != policy.ReasonCapacity {
        t.Fatalf("expected capacity denial, got %v", err)
    }
}

func TestEventsCarryStudentAndMonitorRooms(t *testing.T) {
    f := newFixture(t, 1)
    p := f.request(t, 1, libraryID)

    f.sink.mu.Lock()
    defer f.sink.mu.Unlock()
    if len(f.sink.rooms) != 1 {
        t.Fatalf("expected one publication, got %d", len(f.sink.rooms))
    }
    rooms := f.sink.rooms[0]
    want := map[string]bool{
        realtime.RoomStudent(p.StudentID): false,
        realtime.RoomHallMonitor:          false,
        realtime.RoomAdmin:                false,
    }
    for _, r := range rooms {
        if _, ok := want[r]; ok {
            want[r] = true
        }
    }
    for room, seen := range want {
        if !seen {
            t.Errorf("event missing room %s", room)
        }
    }
}
