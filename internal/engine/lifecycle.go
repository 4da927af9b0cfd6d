package engine

import (
    "context"
    "errors"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/realtime"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// Approve moves a pending pass to approved.  Only the pending state
// is eligible; a concurrent approval or cancellation surfaces as
// ErrInvalidTransition so exactly one caller wins.
func (e *Engine) Approve(ctx context.Context, passID, staffID uint64) (*model.Pass, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    p, err := e.passes.UpdateStatus(ctx, passID, model.StatusPending, model.StatusApproved, repository.StatusStamp{
        ApprovedAt: &now,
        ApprovedBy: &staffID,
    })
    if err != nil {
        return nil, e.transitionErr("approve", passID, err)
    }
    e.record(p.ID, staffID, "approve", model.StatusPending, model.StatusApproved, now)
    e.publish(realtime.EventPassApproved, p, now)
    return p, nil
}

// Cancel ends a pass that has not started moving.  Students may only
// cancel their own passes; staff may cancel any.  Pending and
// approved passes are cancellable, active ones are not: an active
// pass represents a student already in the hallway and must be
// completed or expired instead.
func (e *Engine) Cancel(ctx context.Context, passID, actorID uint64, actorRole string) (*model.Pass, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    cur, err := e.passes.GetByID(ctx, passID)
    if err != nil {
        return nil, e.transitionErr("cancel", passID, err)
    }
    if actorRole == model.RoleStudent && cur.StudentID != actorID {
        return nil, repository.ErrForbidden
    }
    if cur.Status != model.StatusPending && cur.Status != model.StatusApproved {
        return nil, ErrInvalidTransition
    }
    p, err := e.passes.UpdateStatus(ctx, passID, cur.Status, model.StatusCancelled, repository.StatusStamp{})
    if err != nil {
        return nil, e.transitionErr("cancel", passID, err)
    }
    e.record(p.ID, actorID, "cancel", cur.Status, model.StatusCancelled, now)
    e.publish(realtime.EventPassCancelled, p, now)
    return p, nil
}

// Depart marks the student as having left: approved becomes active
// and the countdown starts from now, not from approval.  A pending
// pass cannot depart; destinations that skip approval are already
// activated at admission.
func (e *Engine) Depart(ctx context.Context, passID, studentID uint64) (*model.Pass, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    cur, err := e.passes.GetByID(ctx, passID)
    if err != nil {
        return nil, e.transitionErr("depart", passID, err)
    }
    if cur.StudentID != studentID {
        return nil, repository.ErrForbidden
    }
    if cur.Status == model.StatusPending {
        return nil, ErrAwaitingApproval
    }
    if cur.Status != model.StatusApproved {
        return nil, ErrInvalidTransition
    }
    p, err := e.passes.UpdateStatus(ctx, passID, model.StatusApproved, model.StatusActive, repository.StatusStamp{
        DepartedAt: &now,
    })
    if err != nil {
        return nil, e.transitionErr("depart", passID, err)
    }
    e.record(p.ID, studentID, "depart", model.StatusApproved, model.StatusActive, now)
    e.publish(realtime.EventPassActive, p, now)
    return p, nil
}

// Complete closes an active pass when the student returns.  Students
// complete their own passes; staff may complete any, which covers the
// student who walks back past the front desk without their phone.
func (e *Engine) Complete(ctx context.Context, passID, actorID uint64, actorRole string) (*model.Pass, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    cur, err := e.passes.GetByID(ctx, passID)
    if err != nil {
        return nil, e.transitionErr("complete", passID, err)
    }
    if actorRole == model.RoleStudent && cur.StudentID != actorID {
        return nil, repository.ErrForbidden
    }
    if cur.Status != model.StatusActive {
        return nil, ErrInvalidTransition
    }
    p, err := e.passes.UpdateStatus(ctx, passID, model.StatusActive, model.StatusCompleted, repository.StatusStamp{
        ReturnedAt: &now,
    })
    if err != nil {
        return nil, e.transitionErr("complete", passID, err)
    }
    e.record(p.ID, actorID, "complete", model.StatusActive, model.StatusCompleted, now)
    e.publish(realtime.EventPassCompleted, p, now)
    return p, nil
}

// ForceExpire is the staff override that closes an active pass
// without marking a return, for students who never came back.
func (e *Engine) ForceExpire(ctx context.Context, passID, staffID uint64) (*model.Pass, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    p, err := e.passes.UpdateStatus(ctx, passID, model.StatusActive, model.StatusExpired, repository.StatusStamp{})
    if err != nil {
        return nil, e.transitionErr("force expire", passID, err)
    }
    e.record(p.ID, staffID, "force_expire", model.StatusActive, model.StatusExpired, now)
    e.publish(realtime.EventPassExpired, p, now)
    return p, nil
}

// OpenPass returns the student's current open pass, or nil when the
// student has none.  A pending pass that outlived the approval window
// is expired lazily here so a stale request never blocks a new one
// between sweep runs.
func (e *Engine) OpenPass(ctx context.Context, studentID uint64) (*model.Pass, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    p, err := e.passes.GetOpenByStudent(ctx, studentID)
    if err != nil {
        if errors.Is(err, repository.ErrPassNotFound) {
            return nil, nil
        }
        return nil, e.storeErr("load open pass", err)
    }
    if p.Status == model.StatusPending && now.Sub(p.RequestedAt) > e.cfg.PendingExpiry {
        expired, err := e.expirePending(ctx, p, now)
        if err != nil {
            // Lost a race with an approval or the sweep; report the
            // fresh state instead.
            return e.passes.GetByID(ctx, p.ID)
        }
        return expired, nil
    }
    return p, nil
}

func (e *Engine) expirePending(ctx context.Context, p *model.Pass, now time.Time) (*model.Pass, error) {
    expired, err := e.passes.UpdateStatus(ctx, p.ID, model.StatusPending, model.StatusExpired, repository.StatusStamp{})
    if err != nil {
        return nil, err
    }
    e.record(p.ID, 0, "expire_pending", model.StatusPending, model.StatusExpired, now)
    e.publish(realtime.EventPassExpired, expired, now)
    return expired, nil
}

// SweepOvertime flags every active pass whose elapsed time exceeds
// its limit.  The overtime flag is set at most once per pass: the
// store update is conditional on the notification timestamp being
// unset, so a pass that was already flagged is skipped silently.
// Failures on one pass never stop the sweep from reaching the rest.
func (e *Engine) SweepOvertime(ctx context.Context) (int, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    active, err := e.passes.ListActive(ctx, 0)
    if err != nil {
        return 0, e.storeErr("list active passes", err)
    }
    flagged := 0
    for _, p := range active {
        if !p.Overdue(now) || p.OvertimeNotifiedAt != nil {
            continue
        }
        updated, err := e.passes.MarkOvertime(ctx, p.ID, now)
        if err != nil {
            if errors.Is(err, repository.ErrStatusConflict) || errors.Is(err, repository.ErrPassNotFound) {
                continue
            }
            e.log.Error("overtime sweep failed for pass",
                zap.Uint64("pass_id", p.ID), zap.Error(err))
            continue
        }
        flagged++
        e.record(p.ID, 0, "overtime", model.StatusActive, model.StatusActive, now)
        e.publish(realtime.EventPassOvertime, updated, now)
    }
    return flagged, nil
}

// SweepPendingExpiry expires pending passes older than the approval
// window.  Like the overtime sweep, each pass is handled in
// isolation and races with approvals resolve in favour of whoever
// committed first.
func (e *Engine) SweepPendingExpiry(ctx context.Context) (int, error) {
    now := e.now()
    ctx, cancel := e.bound(ctx)
    defer cancel()

    stale, err := e.passes.ListStalePending(ctx, now.Add(-e.cfg.PendingExpiry), 0)
    if err != nil {
        return 0, e.storeErr("list stale pending passes", err)
    }
    expired := 0
    for _, p := range stale {
        if _, err := e.expirePending(ctx, p, now); err != nil {
            if errors.Is(err, repository.ErrStatusConflict) || errors.Is(err, repository.ErrPassNotFound) {
                continue
            }
            e.log.Error("pending expiry failed for pass",
                zap.Uint64("pass_id", p.ID), zap.Error(err))
            continue
        }
        expired++
    }
    return expired, nil
}

// transitionErr translates store errors on a transition into the
// engine's error vocabulary.
func (e *Engine) transitionErr(op string, passID uint64, err error) error {
    switch {
    case errors.Is(err, repository.ErrPassNotFound):
        return repository.ErrPassNotFound
    case errors.Is(err, repository.ErrStatusConflict):
        return ErrInvalidTransition
    default:
        e.log.Error("transition failed",
            zap.String("op", op), zap.Uint64("pass_id", passID), zap.Error(err))
        return ErrStoreUnavailable
    }
}
