package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

// EncounterGroupRepo provides data access to the `encounter_groups`
// and `encounter_group_members` tables.  Groups are soft-deleted by
// clearing is_active so staff retain the history of which students
// were kept apart and why.
type EncounterGroupRepo struct {
    db *sql.DB
}

// NewEncounterGroupRepo returns a new EncounterGroupRepo bound to the
// provided database.
func NewEncounterGroupRepo(db *sql.DB) *EncounterGroupRepo { return &EncounterGroupRepo{db: db} }

const groupColumns = `id, name, reason, is_active, expires_at, created_by, created_at, updated_at`

func scanGroup(s scanner) (*model.EncounterGroup, error) {
    var (
        g       model.EncounterGroup
        expires sql.NullTime
    )
    err := s.Scan(&g.ID, &g.Name, &g.Reason, &g.IsActive, &expires, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if expires.Valid {
        t := expires.Time
        g.ExpiresAt = &t
    }
    return &g, nil
}

// Create inserts a group and its member rows inside a single
// transaction so a group is never visible without its full member
// set.  The generated ID is populated on the provided record.
func (r *EncounterGroupRepo) Create(ctx context.Context, g *model.EncounterGroup) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    var expires interface{}
    if g.ExpiresAt != nil {
        expires = g.ExpiresAt.UTC()
    }
    res, err := tx.ExecContext(ctx,
        `INSERT INTO encounter_groups (name, reason, is_active, expires_at, created_by) VALUES (?, ?, ?, ?, ?)`,
        g.Name, g.Reason, g.IsActive, expires, g.CreatedBy)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    g.ID = uint64(id)
    for _, sid := range g.StudentIDs {
        if _, err := tx.ExecContext(ctx,
            `INSERT INTO encounter_group_members (group_id, student_id) VALUES (?, ?)`,
            g.ID, sid); err != nil {
            return err
        }
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// GetByID returns a group with its members or ErrGroupNotFound.
func (r *EncounterGroupRepo) GetByID(ctx context.Context, id uint64) (*model.EncounterGroup, error) {
    g, err := scanGroup(r.db.QueryRowContext(ctx,
        `SELECT `+groupColumns+` FROM encounter_groups WHERE id = ?`, id))
    if err == sql.ErrNoRows {
        return nil, ErrGroupNotFound
    }
    if err != nil {
        return nil, err
    }
    if err := r.loadMembers(ctx, []*model.EncounterGroup{g}); err != nil {
        return nil, err
    }
    return g, nil
}

// ListActiveForStudent returns the active, unexpired groups containing
// the given student, members included.  The policy evaluator uses
// these to run the encounter-conflict check.
func (r *EncounterGroupRepo) ListActiveForStudent(ctx context.Context, studentID uint64, now time.Time) ([]*model.EncounterGroup, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+prefixedGroupColumns+`
         FROM encounter_groups g
         JOIN encounter_group_members m ON m.group_id = g.id
         WHERE m.student_id = ? AND g.is_active = 1
           AND (g.expires_at IS NULL OR g.expires_at > ?)`,
        studentID, now.UTC())
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    groups, err := collectGroups(rows)
    if err != nil {
        return nil, err
    }
    if err := r.loadMembers(ctx, groups); err != nil {
        return nil, err
    }
    return groups, nil
}

const prefixedGroupColumns = `g.id, g.name, g.reason, g.is_active, g.expires_at, g.created_by, g.created_at, g.updated_at`

// List returns groups with members, optionally restricted to active
// ones, newest first.
func (r *EncounterGroupRepo) List(ctx context.Context, activeOnly bool) ([]*model.EncounterGroup, error) {
    q := `SELECT ` + groupColumns + ` FROM encounter_groups`
    if activeOnly {
        q += ` WHERE is_active = 1`
    }
    q += ` ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    groups, err := collectGroups(rows)
    if err != nil {
        return nil, err
    }
    if err := r.loadMembers(ctx, groups); err != nil {
        return nil, err
    }
    return groups, nil
}

// Deactivate soft-deletes a group.  The member rows and group record
// remain for history; the policy evaluator stops considering it.
func (r *EncounterGroupRepo) Deactivate(ctx context.Context, id uint64) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE encounter_groups SET is_active = 0 WHERE id = ?`, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        if _, getErr := r.GetByID(ctx, id); getErr != nil {
            return getErr
        }
    }
    return nil
}

func collectGroups(rows *sql.Rows) ([]*model.EncounterGroup, error) {
    groups := make([]*model.EncounterGroup, 0)
    for rows.Next() {
        g, err := scanGroup(rows)
        if err != nil {
            return nil, err
        }
        groups = append(groups, g)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return groups, nil
}

// loadMembers populates StudentIDs for each group in a single query.
func (r *EncounterGroupRepo) loadMembers(ctx context.Context, groups []*model.EncounterGroup) error {
    if len(groups) == 0 {
        return nil
    }
    index := make(map[uint64]*model.EncounterGroup, len(groups))
    placeholders := ""
    args := make([]interface{}, 0, len(groups))
    for i, g := range groups {
        if i > 0 {
            placeholders += ","
        }
        placeholders += "?"
        args = append(args, g.ID)
        g.StudentIDs = []uint64{}
        index[g.ID] = g
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT group_id, student_id FROM encounter_group_members WHERE group_id IN (`+placeholders+`) ORDER BY student_id`,
        args...)
    if err != nil {
        return err
    }
    defer rows.Close()
    for rows.Next() {
        var gid, sid uint64
        if err := rows.Scan(&gid, &sid); err != nil {
            return err
        }
        if g, ok := index[gid]; ok {
            g.StudentIDs = append(g.StudentIDs, sid)
        }
    }
    return rows.Err()
}
