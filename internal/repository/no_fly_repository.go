package repository

import (
    "context"
    "database/sql"
    "strconv"
    "strings"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

// NoFlyRepo provides data access to the `no_fly_windows` table.  The
// weekday, division and grade sets are stored as comma-separated
// strings; the repository converts them to and from slices so the
// rest of the code never sees the encoding.
type NoFlyRepo struct {
    db *sql.DB
}

// NewNoFlyRepo returns a new NoFlyRepo bound to the provided database.
func NewNoFlyRepo(db *sql.DB) *NoFlyRepo { return &NoFlyRepo{db: db} }

const windowColumns = `id, name, start_time, end_time, days_of_week,
       affected_divisions, affected_grades, is_active, description, created_by, created_at, updated_at`

func scanWindow(s scanner) (*model.NoFlyWindow, error) {
    var (
        w         model.NoFlyWindow
        days      string
        divisions sql.NullString
        grades    sql.NullString
        desc      sql.NullString
    )
    err := s.Scan(&w.ID, &w.Name, &w.StartTime, &w.EndTime, &days,
        &divisions, &grades, &w.IsActive, &desc, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
    if err != nil {
        return nil, err
    }
    w.DaysOfWeek = splitInts(days)
    if divisions.Valid && divisions.String != "" {
        w.AffectedDivisions = strings.Split(divisions.String, ",")
    }
    if grades.Valid {
        w.AffectedGrades = splitInts(grades.String)
    }
    if desc.Valid {
        d := desc.String
        w.Description = &d
    }
    return &w, nil
}

// splitInts parses a comma-separated integer list, skipping blanks and
// malformed entries.
func splitInts(csv string) []int {
    if csv == "" {
        return []int{}
    }
    parts := strings.Split(csv, ",")
    out := make([]int, 0, len(parts))
    for _, p := range parts {
        n, err := strconv.Atoi(strings.TrimSpace(p))
        if err != nil {
            continue
        }
        out = append(out, n)
    }
    return out
}

func joinInts(ns []int) string {
    parts := make([]string, 0, len(ns))
    for _, n := range ns {
        parts = append(parts, strconv.Itoa(n))
    }
    return strings.Join(parts, ",")
}

// Create inserts a no-fly window and populates its generated ID.
func (r *NoFlyRepo) Create(ctx context.Context, w *model.NoFlyWindow) error {
    var divisions, grades, desc interface{}
    if len(w.AffectedDivisions) > 0 {
        divisions = strings.Join(w.AffectedDivisions, ",")
    }
    if len(w.AffectedGrades) > 0 {
        grades = joinInts(w.AffectedGrades)
    }
    if w.Description != nil {
        desc = *w.Description
    }
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO no_fly_windows (name, start_time, end_time, days_of_week, affected_divisions, affected_grades, is_active, description, created_by)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        w.Name, w.StartTime, w.EndTime, joinInts(w.DaysOfWeek),
        divisions, grades, w.IsActive, desc, w.CreatedBy)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    w.ID = uint64(id)
    return nil
}

// ListActive returns all active windows.  The policy evaluator reads
// the full set on every admission; schools have at most a handful.
func (r *NoFlyRepo) ListActive(ctx context.Context) ([]*model.NoFlyWindow, error) {
    return r.list(ctx, true)
}

// List returns windows, optionally restricted to active ones.
func (r *NoFlyRepo) List(ctx context.Context, activeOnly bool) ([]*model.NoFlyWindow, error) {
    return r.list(ctx, activeOnly)
}

func (r *NoFlyRepo) list(ctx context.Context, activeOnly bool) ([]*model.NoFlyWindow, error) {
    q := `SELECT ` + windowColumns + ` FROM no_fly_windows`
    if activeOnly {
        q += ` WHERE is_active = 1`
    }
    q += ` ORDER BY start_time ASC`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    windows := make([]*model.NoFlyWindow, 0)
    for rows.Next() {
        w, err := scanWindow(rows)
        if err != nil {
            return nil, err
        }
        windows = append(windows, w)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return windows, nil
}

// Deactivate turns a window off without removing it.
func (r *NoFlyRepo) Deactivate(ctx context.Context, id uint64) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE no_fly_windows SET is_active = 0 WHERE id = ?`, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        var exists bool
        if err := r.db.QueryRowContext(ctx,
            `SELECT EXISTS(SELECT 1 FROM no_fly_windows WHERE id = ?)`, id).Scan(&exists); err != nil {
            return err
        }
        if !exists {
            return ErrWindowNotFound
        }
    }
    return nil
}
