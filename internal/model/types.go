package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization level of a user. It is only ever written by
// the privileged admin operations, never by a login path.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Status is the account status. Suspended accounts fail every login path.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// User represents a user account. Email is the stable join key between
// the password identity and the Google identity; at most one record
// exists per email. At least one of PasswordHash or GoogleID is set.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  *string
	GoogleID      *string
	Name          string
	AvatarURL     *string
	Role          Role
	Status        Status
	VerifiedEmail bool
	LastLoginAt   *time.Time
	CreatedAt     time.Time
}

// HasPassword reports whether the account can log in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// OtpChallenge represents a one-time passcode issued for a password
// reset. Only the salted hash of the code is stored. At most one
// unconsumed challenge exists per email.
type OtpChallenge struct {
	ID           uuid.UUID
	Email        string
	CodeHash     []byte
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
	AttemptCount int
	CreatedAt    time.Time
}

// RefreshSession represents a persisted refresh token. Sessions belong
// to a family: rotation links rows via ReplacedBy, and reuse of an
// already-rotated token revokes the entire family.
type RefreshSession struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	FamilyID   uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}

// Live reports whether the session can still be exchanged for tokens.
func (s RefreshSession) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
