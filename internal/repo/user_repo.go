package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/marketbay/server/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Concurrent identity merges rely on this to detect losing
// the insert race on email.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// NewUserParams are the fields required to insert a user. Role and
// status are deliberately absent: new accounts are always active users,
// and neither login path has a way to pass a role in.
type NewUserParams struct {
	Email         string
	PasswordHash  *string
	GoogleID      *string
	Name          string
	AvatarURL     *string
	VerifiedEmail bool
}

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (model.User, error)
	Insert(ctx context.Context, p NewUserParams) (model.User, error)
	// LinkGoogleID attaches a Google identity to an existing record and
	// backfills the avatar if unset. It only succeeds when the record
	// has no Google identity yet.
	LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string, avatarURL *string) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, email, password_hash, google_id, name, avatar_url, role, status, verified_email, last_login_at, created_at`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var idStr string
	var role, status string
	err := row.Scan(
		&idStr,
		&u.Email,
		&u.PasswordHash,
		&u.GoogleID,
		&u.Name,
		&u.AvatarURL,
		&role,
		&status,
		&u.VerifiedEmail,
		&u.LastLoginAt,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	u.Role = model.Role(role)
	u.Status = model.Status(status)
	return u, nil
}

// FindByID retrieves a user by ID
func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

// FindByEmail retrieves a user by email (case-insensitive)
func (r *userRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email))
	return scanUser(row)
}

// FindByGoogleID retrieves a user by Google subject identifier
func (r *userRepo) FindByGoogleID(ctx context.Context, googleID string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE google_id = $1
	`, googleID)
	return scanUser(row)
}

// Insert creates a new user record. The email-uniqueness constraint is
// enforced by the database; callers translate unique violations.
func (r *userRepo) Insert(ctx context.Context, p NewUserParams) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, google_id, name, avatar_url, verified_email)
		VALUES (lower($1), $2, $3, $4, $5, $6)
		RETURNING `+userColumns+`
	`, strings.TrimSpace(p.Email), p.PasswordHash, p.GoogleID, p.Name, p.AvatarURL, p.VerifiedEmail)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// LinkGoogleID attaches google_id to an existing record that has none.
func (r *userRepo) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string, avatarURL *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET google_id = $2,
		    avatar_url = COALESCE(avatar_url, $3),
		    verified_email = TRUE
		WHERE id = $1 AND google_id IS NULL
	`, id, googleID, avatarURL)
	if err != nil {
		return fmt.Errorf("link google id: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePasswordHash sets a new password hash for the user
func (r *userRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.updateOne(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
}

// UpdateRole sets the user's role. Privileged operation; callers must
// revoke outstanding sessions alongside it.
func (r *userRepo) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return r.updateOne(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, string(role))
}

// UpdateStatus sets the user's account status
func (r *userRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	return r.updateOne(ctx, `UPDATE users SET status = $2 WHERE id = $1`, id, string(status))
}

// UpdateLastLogin stamps last_login_at with the current time
func (r *userRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	return r.updateOne(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, id)
}

func (r *userRepo) updateOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
