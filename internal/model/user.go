package model

import "time"

// Roles carried in the JWT "role" claim.  An ADMIN manages the
// organisation; a KIOSK token is the downgraded credential a check-in
// kiosk runs with and can only read visitors/activities and create visits.
const (
    RoleAdmin = "ADMIN"
    RoleKiosk = "KIOSK"
)

// User represents an organisation admin as stored in the `users` table.
// Kiosks do not have rows of their own; they act on behalf of the admin
// who downgraded the token.
//
// Fields:
//  ID             – primary key identifier of the user.
//  OrganisationID – organisation the admin manages.
//  Email          – unique email address.
//  PasswordHash   – bcrypt hashed password.
//  Role           – ADMIN.
//  IsActive       – whether the account may log in.
//  CreatedAt      – timestamp of creation.
//  UpdatedAt      – timestamp of last update.
type User struct {
    ID             uint64    // users.id
    OrganisationID uint64    // users.organisation_id
    Email          string    // users.email
    PasswordHash   string    // users.password_hash
    Role           string    // users.role
    IsActive       bool      // users.is_active
    CreatedAt      time.Time // users.created_at
    UpdatedAt      time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
