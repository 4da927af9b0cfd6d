package model

import "time"

// Roles recognized by the service.  Students request and carry passes;
// staff approve, deny and force-close them; admins additionally manage
// locations, no-fly windows and encounter groups.
const (
    RoleStudent = "STUDENT"
    RoleStaff   = "STAFF"
    RoleAdmin   = "ADMIN"
)

// User represents an application user record as stored in the
// `users` table.  Each field corresponds to a column in the
// database.  Students carry the pass-policy attributes (grade,
// division, daily limit, per-pass time limit); those columns are
// null or defaulted for staff and admin accounts.
//
// Fields:
//  ID                   – primary key identifier of the user.
//  Email                – unique email address.
//  PasswordHash         – bcrypt hashed password.
//  FirstName            – given name.
//  LastName             – family name.
//  Role                 – STUDENT, STAFF or ADMIN.
//  Grade                – student grade level (nullable).
//  Division             – school division, e.g. LOWER, MIDDLE, HS (nullable).
//  DailyPassLimit       – maximum passes per school day for a student.
//  PassTimeLimitMinutes – ceiling on a single pass's time limit.
//  IsActive             – whether the account is active.
//  CreatedAt            – timestamp of creation.
//  UpdatedAt            – timestamp of last update.
type User struct {
    ID                   uint64    // users.id
    Email                string    // users.email
    PasswordHash         string    // users.password_hash
    FirstName            string    // users.first_name
    LastName             string    // users.last_name
    Role                 string    // users.role
    Grade                *int      // users.grade (nullable)
    Division             *string   // users.division (nullable)
    DailyPassLimit       int       // users.daily_pass_limit
    PassTimeLimitMinutes int       // users.pass_time_limit_minutes
    IsActive             bool      // users.is_active
    CreatedAt            time.Time // users.created_at
    UpdatedAt            time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA‑256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
