package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

// PassRepo provides data access to the `passes` table.  It is the
// single source of truth for pass state: every status change goes
// through a conditional update keyed on the previously observed
// status, so two concurrent writers can never both succeed.  The
// table additionally carries a generated open_slot column (the
// student id while the pass is pending/approved/active, NULL
// otherwise) under a unique key, which enforces the one-open-pass-
// per-student invariant at the store even across service instances.
// All timestamps are stored and compared in UTC.
type PassRepo struct {
    db *sql.DB
}

// NewPassRepo returns a new PassRepo bound to the provided database.
func NewPassRepo(db *sql.DB) *PassRepo { return &PassRepo{db: db} }

// passColumns is the canonical column list used by every SELECT so
// that scanPass stays in sync with the queries.
const passColumns = `id, student_id, origin_id, destination_id, status,
       requested_at, approved_at, approved_by, departed_at, arrived_at, returned_at,
       time_limit_minutes, is_overtime, overtime_notified_at, notes, created_at, updated_at`

// scanner abstracts *sql.Row and *sql.Rows for scanPass.
type scanner interface {
    Scan(dest ...interface{}) error
}

// scanPass reads one row in passColumns order into a model.Pass,
// converting nullable columns to pointers.
func scanPass(s scanner) (*model.Pass, error) {
    var (
        p          model.Pass
        approvedAt sql.NullTime
        approvedBy sql.NullInt64
        departedAt sql.NullTime
        arrivedAt  sql.NullTime
        returnedAt sql.NullTime
        notifiedAt sql.NullTime
        notes      sql.NullString
    )
    err := s.Scan(
        &p.ID, &p.StudentID, &p.OriginID, &p.DestinationID, &p.Status,
        &p.RequestedAt, &approvedAt, &approvedBy, &departedAt, &arrivedAt, &returnedAt,
        &p.TimeLimitMinutes, &p.IsOvertime, &notifiedAt, &notes, &p.CreatedAt, &p.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    if approvedAt.Valid {
        t := approvedAt.Time
        p.ApprovedAt = &t
    }
    if approvedBy.Valid {
        id := uint64(approvedBy.Int64)
        p.ApprovedBy = &id
    }
    if departedAt.Valid {
        t := departedAt.Time
        p.DepartedAt = &t
    }
    if arrivedAt.Valid {
        t := arrivedAt.Time
        p.ArrivedAt = &t
    }
    if returnedAt.Valid {
        t := returnedAt.Time
        p.ReturnedAt = &t
    }
    if notifiedAt.Valid {
        t := notifiedAt.Time
        p.OvertimeNotifiedAt = &t
    }
    if notes.Valid {
        n := notes.String
        p.Notes = &n
    }
    return &p, nil
}

// Create inserts a new pass and populates the generated ID and the
// database-assigned timestamps on the provided record.  When the
// student already holds a pass in a non-terminal state, the unique
// open_slot key rejects the insert and ErrOpenPassExists is returned;
// the engine surfaces that as an ordinary policy denial.
func (r *PassRepo) Create(ctx context.Context, p *model.Pass) error {
    const q = `INSERT INTO passes
        (student_id, origin_id, destination_id, status, requested_at, departed_at, time_limit_minutes, notes)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
    var departed interface{}
    if p.DepartedAt != nil {
        departed = p.DepartedAt.UTC()
    }
    var notes interface{}
    if p.Notes != nil {
        notes = *p.Notes
    }
    res, err := r.db.ExecContext(ctx, q,
        p.StudentID, p.OriginID, p.DestinationID, string(p.Status),
        p.RequestedAt.UTC(), departed, p.TimeLimitMinutes, notes,
    )
    if err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ErrOpenPassExists
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    // Query back the full row to populate timestamps and defaults.
    created, err := r.GetByID(ctx, p.ID)
    if err != nil {
        return err
    }
    *p = *created
    return nil
}

// GetByID returns the pass with the given ID or ErrPassNotFound.
func (r *PassRepo) GetByID(ctx context.Context, id uint64) (*model.Pass, error) {
    p, err := scanPass(r.db.QueryRowContext(ctx,
        `SELECT `+passColumns+` FROM passes WHERE id = ?`, id))
    if err == sql.ErrNoRows {
        return nil, ErrPassNotFound
    }
    return p, err
}

// StatusStamp carries the timestamp and actor columns that accompany a
// status transition.  Only non-nil fields are written, so each
// transition stamps exactly the columns its edge defines.
type StatusStamp struct {
    ApprovedAt *time.Time
    ApprovedBy *uint64
    DepartedAt *time.Time
    ReturnedAt *time.Time
}

// UpdateStatus performs the conditional status transition that every
// lifecycle edge relies on: the row is updated only when its current
// status still equals the expected prior status.  When zero rows are
// affected the method distinguishes a lost race (ErrStatusConflict)
// from a missing pass (ErrPassNotFound).  On success it returns the
// freshly-read pass.
func (r *PassRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.PassStatus, stamp StatusStamp) (*model.Pass, error) {
    set := []string{"status = ?"}
    args := []interface{}{string(to)}
    if stamp.ApprovedAt != nil {
        set = append(set, "approved_at = ?")
        args = append(args, stamp.ApprovedAt.UTC())
    }
    if stamp.ApprovedBy != nil {
        set = append(set, "approved_by = ?")
        args = append(args, *stamp.ApprovedBy)
    }
    if stamp.DepartedAt != nil {
        set = append(set, "departed_at = ?")
        args = append(args, stamp.DepartedAt.UTC())
    }
    if stamp.ReturnedAt != nil {
        set = append(set, "returned_at = ?")
        args = append(args, stamp.ReturnedAt.UTC())
    }
    args = append(args, id, string(from))
    res, err := r.db.ExecContext(ctx,
        `UPDATE passes SET `+strings.Join(set, ", ")+` WHERE id = ? AND status = ?`, args...)
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        if _, getErr := r.GetByID(ctx, id); getErr != nil {
            return nil, getErr
        }
        return nil, ErrStatusConflict
    }
    return r.GetByID(ctx, id)
}

// MarkOvertime flips is_overtime and stamps overtime_notified_at for
// an active pass that has not been flagged yet.  The guard inside the
// UPDATE (status = 'active' AND overtime_notified_at IS NULL) makes
// the overtime sweep idempotent: a second sweep, or an overlapping
// one, affects zero rows and receives ErrStatusConflict instead of
// publishing a duplicate event.
func (r *PassRepo) MarkOvertime(ctx context.Context, id uint64, now time.Time) (*model.Pass, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE passes SET is_overtime = 1, overtime_notified_at = ?
         WHERE id = ? AND status = 'active' AND overtime_notified_at IS NULL`,
        now.UTC(), id)
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        if _, getErr := r.GetByID(ctx, id); getErr != nil {
            return nil, getErr
        }
        return nil, ErrStatusConflict
    }
    return r.GetByID(ctx, id)
}

// HasOpenPass reports whether the student currently holds a pass in a
// non-terminal state.
func (r *PassRepo) HasOpenPass(ctx context.Context, studentID uint64) (bool, error) {
    var exists bool
    err := r.db.QueryRowContext(ctx,
        `SELECT EXISTS(SELECT 1 FROM passes WHERE student_id = ? AND open_slot IS NOT NULL)`,
        studentID).Scan(&exists)
    return exists, err
}

// GetOpenByStudent returns the student's current non-terminal pass or
// ErrPassNotFound when none exists.  At most one such pass can exist
// because of the open_slot unique key.
func (r *PassRepo) GetOpenByStudent(ctx context.Context, studentID uint64) (*model.Pass, error) {
    p, err := scanPass(r.db.QueryRowContext(ctx,
        `SELECT `+passColumns+` FROM passes WHERE student_id = ? AND open_slot IS NOT NULL LIMIT 1`,
        studentID))
    if err == sql.ErrNoRows {
        return nil, ErrPassNotFound
    }
    return p, err
}

// CountRequestedSince counts the student's passes requested at or
// after the given instant.  The policy evaluator uses it with the
// start of the local school day to enforce the daily quota.
func (r *PassRepo) CountRequestedSince(ctx context.Context, studentID uint64, since time.Time) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM passes WHERE student_id = ? AND requested_at >= ?`,
        studentID, since.UTC()).Scan(&n)
    return n, err
}

// OpenPassHolders returns the subset of the given students that
// currently hold a non-terminal pass.  The encounter-group check uses
// it to find conflicting group members.  An empty input returns an
// empty slice without touching the database.
func (r *PassRepo) OpenPassHolders(ctx context.Context, studentIDs []uint64) ([]uint64, error) {
    if len(studentIDs) == 0 {
        return []uint64{}, nil
    }
    placeholders := make([]string, 0, len(studentIDs))
    args := make([]interface{}, 0, len(studentIDs))
    for _, id := range studentIDs {
        placeholders = append(placeholders, "?")
        args = append(args, id)
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT student_id FROM passes
         WHERE student_id IN (`+strings.Join(placeholders, ",")+`) AND open_slot IS NOT NULL`,
        args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    holders := make([]uint64, 0)
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        holders = append(holders, id)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return holders, nil
}

// CountActiveToDestination counts passes currently active toward the
// given destination.  Used for the capacity check and the per-location
// capacity status endpoints.
func (r *PassRepo) CountActiveToDestination(ctx context.Context, destinationID uint64) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM passes WHERE destination_id = ? AND status = 'active'`,
        destinationID).Scan(&n)
    return n, err
}

// CountActiveByDestination returns the number of active passes per
// destination for the occupancy view.  Destinations with no active
// passes are absent from the map.
func (r *PassRepo) CountActiveByDestination(ctx context.Context) (map[uint64]int, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT destination_id, COUNT(*) FROM passes WHERE status = 'active' GROUP BY destination_id`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    counts := make(map[uint64]int)
    for rows.Next() {
        var dest uint64
        var n int
        if err := rows.Scan(&dest, &n); err != nil {
            return nil, err
        }
        counts[dest] = n
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return counts, nil
}

// capLimit turns a non-positive limit into a generous cap.  Callers
// passing 0 mean "everything"; an unbounded LIMIT still protects the
// server from a pathological table.
func capLimit(limit int) int {
    if limit <= 0 {
        return 10000
    }
    return limit
}

// ListActive returns all active passes ordered by departure time,
// oldest first, capped at limit.  The overtime sweep and the hall
// monitor board both read from it.
func (r *PassRepo) ListActive(ctx context.Context, limit int) ([]*model.Pass, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+passColumns+` FROM passes WHERE status = 'active' ORDER BY departed_at ASC LIMIT ?`,
        capLimit(limit))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectPasses(rows)
}

// ListPending returns pending passes ordered by request time, oldest
// first, for the staff approval queue.
func (r *PassRepo) ListPending(ctx context.Context, limit int) ([]*model.Pass, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+passColumns+` FROM passes WHERE status = 'pending' ORDER BY requested_at ASC LIMIT ?`,
        capLimit(limit))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectPasses(rows)
}

// ListStalePending returns pending passes requested before the cutoff.
// The sweep expires them; the same conditional update protects against
// a concurrent approval racing the expiry.
func (r *PassRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.Pass, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+passColumns+` FROM passes
         WHERE status = 'pending' AND requested_at < ? ORDER BY requested_at ASC LIMIT ?`,
        cutoff.UTC(), capLimit(limit))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectPasses(rows)
}

// ListByStudent returns the student's pass history, newest first.
func (r *PassRepo) ListByStudent(ctx context.Context, studentID uint64, limit int) ([]*model.Pass, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+passColumns+` FROM passes WHERE student_id = ? ORDER BY requested_at DESC LIMIT ?`,
        studentID, capLimit(limit))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectPasses(rows)
}

func collectPasses(rows *sql.Rows) ([]*model.Pass, error) {
    passes := make([]*model.Pass, 0)
    for rows.Next() {
        p, err := scanPass(rows)
        if err != nil {
            return nil, err
        }
        passes = append(passes, p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return passes, nil
}

// PassDetail extends a pass with the student and location names needed
// by the hall monitor board and the history/export views.
type PassDetail struct {
    model.Pass
    StudentName     string `json:"student_name"`
    StudentEmail    string `json:"student_email"`
    OriginName      string `json:"origin_name"`
    DestinationName string `json:"destination_name"`
}

// detailColumns extends passColumns with the joined name columns.
const detailColumns = `p.id, p.student_id, p.origin_id, p.destination_id, p.status,
       p.requested_at, p.approved_at, p.approved_by, p.departed_at, p.arrived_at, p.returned_at,
       p.time_limit_minutes, p.is_overtime, p.overtime_notified_at, p.notes, p.created_at, p.updated_at,
       CONCAT(u.first_name, ' ', u.last_name), u.email, o.name, d.name`

func scanPassDetail(s scanner) (*PassDetail, error) {
    var (
        det        PassDetail
        approvedAt sql.NullTime
        approvedBy sql.NullInt64
        departedAt sql.NullTime
        arrivedAt  sql.NullTime
        returnedAt sql.NullTime
        notifiedAt sql.NullTime
        notes      sql.NullString
    )
    err := s.Scan(
        &det.ID, &det.StudentID, &det.OriginID, &det.DestinationID, &det.Status,
        &det.RequestedAt, &approvedAt, &approvedBy, &departedAt, &arrivedAt, &returnedAt,
        &det.TimeLimitMinutes, &det.IsOvertime, &notifiedAt, &notes, &det.CreatedAt, &det.UpdatedAt,
        &det.StudentName, &det.StudentEmail, &det.OriginName, &det.DestinationName,
    )
    if err != nil {
        return nil, err
    }
    if approvedAt.Valid {
        t := approvedAt.Time
        det.ApprovedAt = &t
    }
    if approvedBy.Valid {
        id := uint64(approvedBy.Int64)
        det.ApprovedBy = &id
    }
    if departedAt.Valid {
        t := departedAt.Time
        det.DepartedAt = &t
    }
    if arrivedAt.Valid {
        t := arrivedAt.Time
        det.ArrivedAt = &t
    }
    if returnedAt.Valid {
        t := returnedAt.Time
        det.ReturnedAt = &t
    }
    if notifiedAt.Valid {
        t := notifiedAt.Time
        det.OvertimeNotifiedAt = &t
    }
    if notes.Valid {
        n := notes.String
        det.Notes = &n
    }
    return &det, nil
}

// ListActiveDetailed returns active passes joined with student and
// location names for the hall monitor board, ordered by departure
// time so the longest-out students appear first.
func (r *PassRepo) ListActiveDetailed(ctx context.Context, limit int) ([]*PassDetail, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+detailColumns+`
         FROM passes p
         JOIN users u ON u.id = p.student_id
         JOIN locations o ON o.id = p.origin_id
         JOIN locations d ON d.id = p.destination_id
         WHERE p.status = 'active'
         ORDER BY p.departed_at ASC
         LIMIT ?`, capLimit(limit))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectDetails(rows)
}

// ListHistoryDetailed returns passes requested inside [from, to),
// newest first, joined with names.  The admin export builds its
// workbook from these rows.
func (r *PassRepo) ListHistoryDetailed(ctx context.Context, from, to time.Time, limit int) ([]*PassDetail, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+detailColumns+`
         FROM passes p
         JOIN users u ON u.id = p.student_id
         JOIN locations o ON o.id = p.origin_id
         JOIN locations d ON d.id = p.destination_id
         WHERE p.requested_at >= ? AND p.requested_at < ?
         ORDER BY p.requested_at DESC
         LIMIT ?`, from.UTC(), to.UTC(), capLimit(limit))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectDetails(rows)
}

func collectDetails(rows *sql.Rows) ([]*PassDetail, error) {
    details := make([]*PassDetail, 0)
    for rows.Next() {
        d, err := scanPassDetail(rows)
        if err != nil {
            return nil, err
        }
        details = append(details, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return details, nil
}
