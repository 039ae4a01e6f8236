package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketbay/server/internal/model"
)

// OtpRepo defines the interface for OTP challenge repository operations
type OtpRepo interface {
	// CreateOrReplace consumes any live challenge for the email and
	// inserts a new one, so at most one usable challenge exists per
	// email at any time.
	CreateOrReplace(ctx context.Context, email, codeHashHex string, expiresAt time.Time) (uuid.UUID, error)
	// FindActiveByEmail returns the unconsumed challenge for the email,
	// regardless of expiry or attempt count; those are judged by the caller.
	FindActiveByEmail(ctx context.Context, email string) (model.OtpChallenge, error)
	// LatestCreatedAt returns the creation time of the most recent
	// challenge for the email (consumed or not), for cool-down checks.
	LatestCreatedAt(ctx context.Context, email string) (time.Time, error)
	MarkConsumed(ctx context.Context, id uuid.UUID) error
	IncrementAttempt(ctx context.Context, id uuid.UUID) (newAttemptCount int, err error)
	// DeleteExpired removes challenges that expired or were consumed
	// before the cutoff. Garbage collection only.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// CreateOrReplace atomically invalidates any existing unconsumed challenge and
// inserts a new one. An advisory lock serializes requests per email so two
// concurrent inserts cannot both pass the partial unique index.
func (r *otpRepo) CreateOrReplace(ctx context.Context, email, codeHashHex string, expiresAt time.Time) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext(lower($1)))`, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE otp_challenges
		SET consumed_at = now()
		WHERE lower(email) = lower($1) AND consumed_at IS NULL
	`, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume existing challenges: %w", err)
	}

	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO otp_challenges (email, code_hash, expires_at)
		VALUES (lower($1), $2, $3)
		RETURNING id
	`, email, codeHashHex, expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse challenge ID: %w", err)
	}
	return id, nil
}

// FindActiveByEmail returns the unconsumed challenge for the email.
func (r *otpRepo) FindActiveByEmail(ctx context.Context, email string) (model.OtpChallenge, error) {
	var c model.OtpChallenge
	var idStr, codeHashHex string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, code_hash, expires_at, consumed_at, attempt_count, created_at
		FROM otp_challenges
		WHERE lower(email) = lower($1) AND consumed_at IS NULL
	`, email).Scan(
		&idStr,
		&c.Email,
		&codeHashHex,
		&c.ExpiresAt,
		&c.ConsumedAt,
		&c.AttemptCount,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpChallenge{}, ErrNotFound
		}
		return model.OtpChallenge{}, fmt.Errorf("query challenge: %w", err)
	}

	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.OtpChallenge{}, fmt.Errorf("parse challenge ID: %w", err)
	}
	c.CodeHash, err = hex.DecodeString(codeHashHex)
	if err != nil {
		return model.OtpChallenge{}, fmt.Errorf("decode code_hash: %w", err)
	}
	return c, nil
}

// LatestCreatedAt returns the creation time of the newest challenge for the email.
func (r *otpRepo) LatestCreatedAt(ctx context.Context, email string) (time.Time, error) {
	var created time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT created_at FROM otp_challenges
		WHERE lower(email) = lower($1)
		ORDER BY created_at DESC
		LIMIT 1
	`, email).Scan(&created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("query latest challenge: %w", err)
	}
	return created, nil
}

// MarkConsumed sets consumed_at = now() for the challenge.
func (r *otpRepo) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_challenges SET consumed_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementAttempt bumps attempt_count and returns the new value.
func (r *otpRepo) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE otp_challenges
		SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count
	`, id).Scan(&newCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	return newCount, nil
}

// DeleteExpired removes dead challenge rows older than the cutoff.
func (r *otpRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM otp_challenges
		WHERE expires_at < $1 OR consumed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
