package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketbay/server/internal/model"
	"github.com/marketbay/server/internal/repo"
)

// TokenPair is the result of any successful authentication.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// HashRefreshToken returns SHA256 hex of the token string; only the
// hash is ever persisted.
func HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenService issues, rotates, and revokes token pairs. Access tokens
// are stateless; refresh tokens are backed by session rows grouped into
// rotation families.
type TokenService struct {
	jwt         *JWTService
	refreshRepo repo.RefreshRepo
	refreshTTL  time.Duration
}

// NewTokenService creates a new token service
func NewTokenService(jwtService *JWTService, refreshRepo repo.RefreshRepo, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		jwt:         jwtService,
		refreshRepo: refreshRepo,
		refreshTTL:  refreshTTL,
	}
}

// Issue mints a fresh token pair and starts a new rotation family.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID, role model.Role) (TokenPair, error) {
	pair, _, err := s.issue(ctx, userID, role, uuid.New())
	return pair, err
}

func (s *TokenService) issue(ctx context.Context, userID uuid.UUID, role model.Role, familyID uuid.UUID) (TokenPair, uuid.UUID, error) {
	accessToken, err := s.jwt.SignAccess(userID, role)
	if err != nil {
		return TokenPair{}, uuid.Nil, err
	}

	sessionID := uuid.New()
	refreshToken, err := s.jwt.SignRefresh(userID, sessionID)
	if err != nil {
		return TokenPair{}, uuid.Nil, err
	}

	err = s.refreshRepo.Create(ctx, model.RefreshSession{
		ID:        sessionID,
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: HashRefreshToken(refreshToken),
		ExpiresAt: time.Now().Add(s.refreshTTL),
	})
	if err != nil {
		return TokenPair{}, uuid.Nil, fmt.Errorf("persist refresh session: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, sessionID, nil
}

// VerifyAccess checks an access token. Stateless: no store lookup.
func (s *TokenService) VerifyAccess(tokenString string) (*Claims, error) {
	return s.jwt.Verify(tokenString, TokenAccess)
}

// VerifyReset checks a password-reset token.
func (s *TokenService) VerifyReset(tokenString string) (*Claims, error) {
	return s.jwt.Verify(tokenString, TokenReset)
}

// verifyRefresh checks the signature and returns the live session row.
// A token whose row is revoked or replaced signals replay: the whole
// family is revoked and the caller gets ErrTokenReused.
func (s *TokenService) verifyRefresh(ctx context.Context, tokenString string) (model.RefreshSession, error) {
	if _, err := s.jwt.Verify(tokenString, TokenRefresh); err != nil {
		return model.RefreshSession{}, err
	}

	session, err := s.refreshRepo.FindByTokenHash(ctx, HashRefreshToken(tokenString))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.RefreshSession{}, ErrInvalidToken
		}
		return model.RefreshSession{}, err
	}

	if session.RevokedAt != nil {
		if err := s.refreshRepo.RevokeFamily(ctx, session.FamilyID); err != nil {
			return model.RefreshSession{}, err
		}
		return model.RefreshSession{}, ErrTokenReused
	}
	if !session.Live(time.Now()) {
		return model.RefreshSession{}, ErrInvalidToken
	}
	return session, nil
}

// Rotate exchanges a verified session for a new pair: the old session
// is revoked and linked to its successor in the same family.
func (s *TokenService) Rotate(ctx context.Context, session model.RefreshSession, role model.Role) (TokenPair, error) {
	pair, newID, err := s.issue(ctx, session.UserID, role, session.FamilyID)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.refreshRepo.RevokeAndReplace(ctx, session.ID, newID); err != nil {
		// Someone else rotated this token between our check and now.
		// Treat it as reuse and kill the family.
		if errors.Is(err, repo.ErrNotFound) {
			_ = s.refreshRepo.RevokeFamily(ctx, session.FamilyID)
			return TokenPair{}, ErrTokenReused
		}
		return TokenPair{}, err
	}
	return pair, nil
}

// SessionForToken resolves a valid refresh token to its session row
// without rotating it (used by logout).
func (s *TokenService) SessionForToken(ctx context.Context, refreshToken string) (model.RefreshSession, error) {
	return s.verifyRefresh(ctx, refreshToken)
}

// Revoke invalidates a single refresh session (logout of one client).
func (s *TokenService) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	err := s.refreshRepo.Revoke(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

// RevokeAll invalidates every outstanding refresh session for a user.
// Called on logout-everywhere, password change, and role change.
func (s *TokenService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.refreshRepo.RevokeAllForUser(ctx, userID)
}
