// Package audit appends an immutable record of every pass transition
// to the audit_log table.  Writes are fire-and-forget from the
// engine's perspective: a failed append is logged and dropped, never
// propagated to the caller, and rows are never updated or deleted.
package audit

import (
    "context"
    "database/sql"
    "time"

    "go.uber.org/zap"
)

// SystemActor is recorded when a transition was performed by the
// service itself (the overtime/expiry sweep) rather than a user.
const SystemActor uint64 = 0

// Entry is one appended audit record: who did what to which pass.
type Entry struct {
    PassID    uint64
    ActorID   uint64
    Action    string
    OldStatus string
    NewStatus string
    When      time.Time
}

// Repo writes entries to the audit_log table.
type Repo struct {
    db *sql.DB
}

// NewRepo returns a new Repo bound to the provided database.
func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// Insert appends one entry.
func (r *Repo) Insert(ctx context.Context, e Entry) error {
    var actor interface{}
    if e.ActorID != SystemActor {
        actor = e.ActorID
    }
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO audit_log (pass_id, actor_id, action, old_status, new_status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
        e.PassID, actor, e.Action, e.OldStatus, e.NewStatus, e.When.UTC())
    return err
}

// Trail is the engine-facing recorder.  Record never blocks the
// transition that triggered it beyond a short bounded write.
type Trail struct {
    repo *Repo
    log  *zap.Logger
}

// NewTrail returns a Trail writing through repo.
func NewTrail(repo *Repo, log *zap.Logger) *Trail {
    return &Trail{repo: repo, log: log}
}

// Record appends the entry with its own timeout, detached from the
// caller's context so a cancelled request still leaves its trace.
func (t *Trail) Record(e Entry) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := t.repo.Insert(ctx, e); err != nil {
        t.log.Warn("audit append failed",
            zap.Uint64("pass_id", e.PassID),
            zap.String("action", e.Action),
            zap.Error(err))
    }
}
