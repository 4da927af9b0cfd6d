package repository

import (
    "context"
    "database/sql"
    "strings"

    "github.com/iliyamo/hall-pass-service/internal/model"
)

// LocationRepo provides data access to the `locations` table.  The
// pass engine only reads locations; creation and updates come from
// the admin endpoints.
type LocationRepo struct {
    db *sql.DB
}

// NewLocationRepo returns a new LocationRepo bound to the provided database.
func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

const locationColumns = `id, name, building, room_number, type, max_capacity,
       requires_approval, default_time_limit_minutes, is_active, created_at, updated_at`

func scanLocation(s scanner) (*model.Location, error) {
    var (
        loc      model.Location
        building sql.NullString
        room     sql.NullString
        capacity sql.NullInt64
    )
    err := s.Scan(
        &loc.ID, &loc.Name, &building, &room, &loc.Type, &capacity,
        &loc.RequiresApproval, &loc.DefaultTimeLimitMinutes, &loc.IsActive,
        &loc.CreatedAt, &loc.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    if building.Valid {
        b := building.String
        loc.Building = &b
    }
    if room.Valid {
        rn := room.String
        loc.RoomNumber = &rn
    }
    if capacity.Valid {
        c := int(capacity.Int64)
        loc.MaxCapacity = &c
    }
    return &loc, nil
}

// GetByID returns the location with the given ID or ErrLocationNotFound.
func (r *LocationRepo) GetByID(ctx context.Context, id uint64) (*model.Location, error) {
    loc, err := scanLocation(r.db.QueryRowContext(ctx,
        `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
    if err == sql.ErrNoRows {
        return nil, ErrLocationNotFound
    }
    return loc, err
}

// ListActive returns all active locations ordered by name.  Students
// pick pass destinations from this list.
func (r *LocationRepo) ListActive(ctx context.Context) ([]*model.Location, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+locationColumns+` FROM locations WHERE is_active = 1 ORDER BY name ASC`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    locs := make([]*model.Location, 0)
    for rows.Next() {
        loc, err := scanLocation(rows)
        if err != nil {
            return nil, err
        }
        locs = append(locs, loc)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return locs, nil
}

// Create inserts a location and populates its generated ID.
func (r *LocationRepo) Create(ctx context.Context, loc *model.Location) error {
    var building, room, capacity interface{}
    if loc.Building != nil {
        building = *loc.Building
    }
    if loc.RoomNumber != nil {
        room = *loc.RoomNumber
    }
    if loc.MaxCapacity != nil {
        capacity = *loc.MaxCapacity
    }
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO locations (name, building, room_number, type, max_capacity, requires_approval, default_time_limit_minutes, is_active)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
        loc.Name, building, room, loc.Type, capacity,
        loc.RequiresApproval, loc.DefaultTimeLimitMinutes, loc.IsActive)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    loc.ID = uint64(id)
    return nil
}

// LocationUpdate holds the optional fields an admin can change on a
// location.  Nil fields are left untouched.
type LocationUpdate struct {
    Name                    *string
    Type                    *string
    MaxCapacity             *int
    RequiresApproval        *bool
    DefaultTimeLimitMinutes *int
    IsActive                *bool
}

// Update applies the non-nil fields of upd to the location.  It
// returns ErrLocationNotFound when the id matches no row and is a
// no-op when every field is nil.
func (r *LocationRepo) Update(ctx context.Context, id uint64, upd LocationUpdate) error {
    set := make([]string, 0, 6)
    args := make([]interface{}, 0, 7)
    if upd.Name != nil {
        set = append(set, "name = ?")
        args = append(args, *upd.Name)
    }
    if upd.Type != nil {
        set = append(set, "type = ?")
        args = append(args, *upd.Type)
    }
    if upd.MaxCapacity != nil {
        set = append(set, "max_capacity = ?")
        args = append(args, *upd.MaxCapacity)
    }
    if upd.RequiresApproval != nil {
        set = append(set, "requires_approval = ?")
        args = append(args, *upd.RequiresApproval)
    }
    if upd.DefaultTimeLimitMinutes != nil {
        set = append(set, "default_time_limit_minutes = ?")
        args = append(args, *upd.DefaultTimeLimitMinutes)
    }
    if upd.IsActive != nil {
        set = append(set, "is_active = ?")
        args = append(args, *upd.IsActive)
    }
    if len(set) == 0 {
        return nil
    }
    args = append(args, id)
    res, err := r.db.ExecContext(ctx,
        `UPDATE locations SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
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
