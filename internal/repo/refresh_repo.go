package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketbay/server/internal/model"
)

// RefreshRepo defines the interface for refresh session repository operations
type RefreshRepo interface {
	Create(ctx context.Context, s model.RefreshSession) error
	// FindByTokenHash returns the session regardless of revocation or
	// expiry; token-state policy (reuse detection) lives in the caller.
	FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeAndReplace(ctx context.Context, id uuid.UUID, replacedBy uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	// DeleteDead removes sessions that expired or were revoked before
	// the cutoff. Garbage collection only.
	DeleteDead(ctx context.Context, cutoff time.Time) (int64, error)
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

// Create inserts a new refresh session
func (r *refreshRepo) Create(ctx context.Context, s model.RefreshSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, user_id, family_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.UserID, s.FamilyID, s.TokenHash, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}
	return nil
}

// FindByTokenHash returns the session for the hash, revoked or not.
func (r *refreshRepo) FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var s model.RefreshSession
	var idStr, userIDStr, familyIDStr string
	var replacedBy sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, family_id, token_hash, created_at, expires_at, revoked_at, replaced_by
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&idStr,
		&userIDStr,
		&familyIDStr,
		&s.TokenHash,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&replacedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshSession{}, ErrNotFound
		}
		return model.RefreshSession{}, fmt.Errorf("find refresh session: %w", err)
	}
	s.ID, _ = uuid.Parse(idStr)
	s.UserID, _ = uuid.Parse(userIDStr)
	s.FamilyID, _ = uuid.Parse(familyIDStr)
	if replacedBy.Valid && replacedBy.String != "" {
		u, _ := uuid.Parse(replacedBy.String)
		s.ReplacedBy = &u
	}
	return s, nil
}

// RevokeAndReplace revokes the session and records its successor.
func (r *refreshRepo) RevokeAndReplace(ctx context.Context, id uuid.UUID, replacedBy uuid.UUID) error {
	return r.revokeWhere(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = now(), replaced_by = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, replacedBy)
}

// Revoke revokes a single session (logout).
func (r *refreshRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	return r.revokeWhere(ctx, `
		UPDATE refresh_sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL
	`, id)
}

// RevokeFamily revokes every session in a rotation family (reuse response).
func (r *refreshRepo) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now() WHERE family_id = $1 AND revoked_at IS NULL
	`, familyID)
	if err != nil {
		return fmt.Errorf("revoke family: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes all live sessions for a user (password/role change).
func (r *refreshRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return fmt.Errorf("revoke all sessions for user: %w", err)
	}
	return nil
}

// DeleteDead removes long-dead session rows.
func (r *refreshRepo) DeleteDead(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_sessions
		WHERE expires_at < $1 OR revoked_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete dead sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (r *refreshRepo) revokeWhere(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
