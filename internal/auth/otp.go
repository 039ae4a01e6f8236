package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/marketbay/server/internal/mail"
	"github.com/marketbay/server/internal/metrics"
	"github.com/marketbay/server/internal/repo"
)

const otpCodeLength = 6

// OtpConfig tunes the password-reset flow.
type OtpConfig struct {
	Salt        string
	TTL         time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// OtpService owns the password-reset state machine: issue a code,
// verify it, exchange it for a reset token, and finish with a password
// update that kills all existing sessions.
type OtpService struct {
	otpRepo  repo.OtpRepo
	userRepo repo.UserRepo
	tokens   *TokenService
	mailer   mail.Mailer
	cfg      OtpConfig
}

// NewOtpService creates a new OTP recovery service
func NewOtpService(otpRepo repo.OtpRepo, userRepo repo.UserRepo, tokens *TokenService, mailer mail.Mailer, cfg OtpConfig) *OtpService {
	return &OtpService{
		otpRepo:  otpRepo,
		userRepo: userRepo,
		tokens:   tokens,
		mailer:   mailer,
		cfg:      cfg,
	}
}

// RequestReset issues a reset code for the email. It never reports
// whether the email exists: unknown accounts, cool-down hits, and
// delivery failures all look identical to the caller.
func (s *OtpService) RequestReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	if _, err := s.userRepo.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up user: %w", err)
	}

	if last, err := s.otpRepo.LatestCreatedAt(ctx, email); err == nil {
		if time.Since(last) < s.cfg.Cooldown {
			// Inside the cool-down window: no new code, still silent.
			return nil
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("cool-down check: %w", err)
	}

	code, err := generateOtpCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	expiresAt := time.Now().Add(s.cfg.TTL)
	if _, err := s.otpRepo.CreateOrReplace(ctx, email, hashOtpHex(email, code, s.cfg.Salt), expiresAt); err != nil {
		return fmt.Errorf("persist challenge: %w", err)
	}
	metrics.OtpIssued.Inc()

	// The challenge is persisted before delivery is attempted, so a
	// slow or failed send never leaves the account without a usable
	// code. Delivery failure is logged, counted, and swallowed.
	msg := resetMessage(email, code, s.cfg.TTL)
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.MailDeliveryFailures.Inc()
		log.Printf("Email %s: reset code delivery failed: %v", mail.MaskAddress(email), err)
	}
	return nil
}

// VerifyReset checks a code and, on match, consumes the challenge and
// returns a short-lived token scoped to setting a new password.
func (s *OtpService) VerifyReset(ctx context.Context, email, code string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	challenge, err := s.otpRepo.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNoActiveChallenge
		}
		return "", fmt.Errorf("look up challenge: %w", err)
	}

	if time.Now().After(challenge.ExpiresAt) {
		return "", ErrChallengeExpired
	}

	attempts, err := s.otpRepo.IncrementAttempt(ctx, challenge.ID)
	if err != nil {
		return "", fmt.Errorf("record attempt: %w", err)
	}
	if attempts > s.cfg.MaxAttempts {
		// Past the ceiling the challenge is dead even for the right code.
		_ = s.otpRepo.MarkConsumed(ctx, challenge.ID)
		return "", ErrTooManyAttempts
	}

	provided := hashOtpBytes(email, strings.TrimSpace(code), s.cfg.Salt)
	if subtle.ConstantTimeCompare(provided, challenge.CodeHash) != 1 {
		if attempts == s.cfg.MaxAttempts {
			_ = s.otpRepo.MarkConsumed(ctx, challenge.ID)
			return "", ErrTooManyAttempts
		}
		return "", ErrNoActiveChallenge
	}

	if err := s.otpRepo.MarkConsumed(ctx, challenge.ID); err != nil {
		return "", fmt.Errorf("consume challenge: %w", err)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}

	token, err := s.tokens.jwt.SignReset(user.ID, passwordFingerprint(user.PasswordHash))
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	metrics.OtpVerified.Inc()
	return token, nil
}

// CompleteReset sets a new password for the account behind a valid
// reset token and revokes every outstanding session, so any session an
// attacker might already hold dies with the old password.
func (s *OtpService) CompleteReset(ctx context.Context, resetToken, newPassword string) error {
	claims, err := s.tokens.VerifyReset(resetToken)
	if err != nil {
		return err
	}
	userID, err := claims.UserID()
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return ErrInvalidToken
	}
	// A token minted against an older password hash has already been
	// used (or raced another reset); either way it is dead.
	if claims.Fingerprint != passwordFingerprint(user.PasswordHash) {
		return ErrInvalidToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("update password: %w", err)
	}

	return s.tokens.RevokeAll(ctx, userID)
}

// generateOtpCode returns a fixed-length numeric code from crypto/rand.
func generateOtpCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < otpCodeLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpCodeLength, n), nil
}

// passwordFingerprint derives a short commitment to the current
// password hash (empty for OAuth-only accounts).
func passwordFingerprint(passwordHash *string) string {
	var current string
	if passwordHash != nil {
		current = *passwordHash
	}
	sum := sha256.Sum256([]byte(current))
	return hex.EncodeToString(sum[:8])
}

// hashOtpHex returns SHA-256(email:code:salt) as hex for storage.
func hashOtpHex(email, code, salt string) string {
	return hex.EncodeToString(hashOtpBytes(email, code, salt))
}

func hashOtpBytes(email, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", email, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

func resetMessage(email, code string, ttl time.Duration) mail.Message {
	minutes := int(ttl.Minutes())
	return mail.Message{
		To:      email,
		Subject: "Your password reset code",
		Text: fmt.Sprintf(
			"Your password reset code is %s. It expires in %d minutes.\n\nIf you did not request a reset, you can ignore this email.",
			code, minutes),
		HTML: fmt.Sprintf(
			`<p>Your password reset code is <strong>%s</strong>. It expires in %d minutes.</p><p>If you did not request a reset, you can ignore this email.</p>`,
			code, minutes),
	}
}
