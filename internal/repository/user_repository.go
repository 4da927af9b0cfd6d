package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/utils"
)

// UserRepo provides data access to the `users` table.  Besides the
// account columns it owns the per-student pass policy attributes
// (grade, division, daily pass limit, per-pass time limit) that the
// policy evaluator reads on every admission.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const userColumns = `id, email, password_hash, first_name, last_name, role,
       grade, division, daily_pass_limit, pass_time_limit_minutes, is_active, created_at, updated_at`

func scanUser(s scanner) (model.User, error) {
    var (
        u        model.User
        grade    sql.NullInt64
        division sql.NullString
    )
    err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
        &grade, &division, &u.DailyPassLimit, &u.PassTimeLimitMinutes, &u.IsActive,
        &u.CreatedAt, &u.UpdatedAt)
    if err != nil {
        return model.User{}, err
    }
    if grade.Valid {
        g := int(grade.Int64)
        u.Grade = &g
    }
    if division.Valid {
        d := division.String
        u.Division = &d
    }
    return u, nil
}

// NewAccount carries the fields needed to register a user.  Grade and
// Division apply to students only.
type NewAccount struct {
    Email     string
    Password  string
    FirstName string
    LastName  string
    Role      string
    Grade     *int
    Division  *string
}

// Create inserts a user and returns its ID.  The daily pass limit and
// per-pass time limit come from the column defaults; admins adjust
// them per student afterwards.
func (r *UserRepo) Create(ctx context.Context, acc NewAccount, cost int) (uint64, error) {
    email := strings.ToLower(strings.TrimSpace(acc.Email))
    hash, err := utils.HashPassword(acc.Password, cost)
    if err != nil {
        return 0, err
    }
    var grade, division interface{}
    if acc.Grade != nil {
        grade = *acc.Grade
    }
    if acc.Division != nil {
        division = *acc.Division
    }
    res, err := r.DB.ExecContext(ctx,
        "INSERT INTO users (email, password_hash, first_name, last_name, role, grade, division) VALUES (?,?,?,?,?,?,?)",
        email, hash, acc.FirstName, acc.LastName, acc.Role, grade, division)
    if err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return 0, ErrEmailExists
        }
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    return scanUser(r.DB.QueryRowContext(ctx,
        "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
    u, err := scanUser(r.DB.QueryRowContext(ctx,
        "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
    if err == sql.ErrNoRows {
        return model.User{}, ErrUserNotFound
    }
    return u, err
}

// GetStudent fetches a user and verifies it is an active student.
// The engine uses it to resolve the policy attributes of a requester.
func (r *UserRepo) GetStudent(ctx context.Context, id uint64) (model.User, error) {
    u, err := r.GetByID(ctx, id)
    if err != nil {
        return model.User{}, err
    }
    if u.Role != model.RoleStudent || !u.IsActive {
        return model.User{}, ErrUserNotFound
    }
    return u, nil
}

// AllStudentsExist reports whether every id belongs to a student
// account.  Encounter-group creation validates its member list with it.
func (r *UserRepo) AllStudentsExist(ctx context.Context, ids []uint64) (bool, error) {
    if len(ids) == 0 {
        return true, nil
    }
    placeholders := make([]string, 0, len(ids))
    args := make([]interface{}, 0, len(ids))
    for _, id := range ids {
        placeholders = append(placeholders, "?")
        args = append(args, id)
    }
    var n int
    err := r.DB.QueryRowContext(ctx,
        "SELECT COUNT(*) FROM users WHERE role='STUDENT' AND id IN ("+strings.Join(placeholders, ",")+")",
        args...).Scan(&n)
    if err != nil {
        return false, err
    }
    return n == len(ids), nil
}
