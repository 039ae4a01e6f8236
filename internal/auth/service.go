package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/marketbay/server/internal/metrics"
	"github.com/marketbay/server/internal/model"
	"github.com/marketbay/server/internal/repo"
)

// SessionResult is returned by every successful login path.
type SessionResult struct {
	User   model.User
	Tokens TokenPair
}

// Service resolves login attempts to a canonical user record and mints
// sessions. Both login paths converge here; neither has any way to
// write a role.
type Service struct {
	userRepo repo.UserRepo
	tokens   *TokenService
	google   *GoogleVerifier
}

// NewService creates a new identity service. google may be nil when
// Google login is not configured.
func NewService(userRepo repo.UserRepo, tokens *TokenService, google *GoogleVerifier) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		google:   google,
	}
}

// Tokens exposes the underlying token service.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Register creates a password account and logs it in.
func (s *Service) Register(ctx context.Context, email, password, name string) (SessionResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return SessionResult{}, ErrInvalidCredentials
	}

	hash, err := HashPassword(password)
	if err != nil {
		return SessionResult{}, err
	}

	user, err := s.userRepo.Insert(ctx, repo.NewUserParams{
		Email:        email,
		PasswordHash: &hash,
		Name:         name,
	})
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return SessionResult{}, ErrEmailTaken
		}
		return SessionResult{}, fmt.Errorf("create account: %w", err)
	}

	return s.startSession(ctx, user)
}

// LoginWithPassword authenticates an email/password pair. Unknown
// email, OAuth-only account, and wrong password are indistinguishable
// to the caller.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (SessionResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			metrics.LoginFailures.WithLabelValues("password").Inc()
			return SessionResult{}, ErrInvalidCredentials
		}
		return SessionResult{}, fmt.Errorf("look up user: %w", err)
	}

	if !user.HasPassword() || !CheckPassword(password, *user.PasswordHash) {
		metrics.LoginFailures.WithLabelValues("password").Inc()
		return SessionResult{}, ErrInvalidCredentials
	}
	if user.Status != model.StatusActive {
		metrics.LoginFailures.WithLabelValues("password").Inc()
		return SessionResult{}, ErrAccountSuspended
	}

	metrics.LoginSuccesses.WithLabelValues("password").Inc()
	return s.startSession(ctx, user)
}

// LoginWithGoogle verifies a Google ID token and resolves it to exactly
// one account: by Google id first, else by linking to the existing
// email account, else by creating a new one.
func (s *Service) LoginWithGoogle(ctx context.Context, idToken string) (SessionResult, error) {
	if s.google == nil {
		return SessionResult{}, ErrInvalidAssertion
	}
	identity, err := s.google.Verify(idToken)
	if err != nil {
		metrics.LoginFailures.WithLabelValues("google").Inc()
		return SessionResult{}, err
	}

	user, err := s.resolveGoogleIdentity(ctx, identity)
	if err != nil {
		metrics.LoginFailures.WithLabelValues("google").Inc()
		return SessionResult{}, err
	}
	if user.Status != model.StatusActive {
		metrics.LoginFailures.WithLabelValues("google").Inc()
		return SessionResult{}, ErrAccountSuspended
	}

	metrics.LoginSuccesses.WithLabelValues("google").Inc()
	return s.startSession(ctx, user)
}

// resolveGoogleIdentity applies the merge algorithm. A concurrent merge
// for the same email loses the insert race on the email unique index;
// one retry re-runs the lookups, which then find the winner's record.
func (s *Service) resolveGoogleIdentity(ctx context.Context, identity GoogleIdentity) (model.User, error) {
	for attempt := 0; attempt < 2; attempt++ {
		user, err := s.userRepo.FindByGoogleID(ctx, identity.Subject)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return model.User{}, fmt.Errorf("look up by google id: %w", err)
		}

		user, err = s.userRepo.FindByEmail(ctx, identity.Email)
		if err == nil {
			// Existing password account for the same email: link the
			// Google identity instead of creating a duplicate.
			var avatar *string
			if identity.AvatarURL != "" {
				avatar = &identity.AvatarURL
			}
			if linkErr := s.userRepo.LinkGoogleID(ctx, user.ID, identity.Subject, avatar); linkErr != nil {
				if errors.Is(linkErr, repo.ErrNotFound) || repo.IsUniqueViolation(linkErr) {
					continue
				}
				return model.User{}, fmt.Errorf("link google identity: %w", linkErr)
			}
			metrics.IdentityMerges.Inc()
			return s.userRepo.FindByID(ctx, user.ID)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return model.User{}, fmt.Errorf("look up by email: %w", err)
		}

		googleID := identity.Subject
		var avatar *string
		if identity.AvatarURL != "" {
			avatar = &identity.AvatarURL
		}
		user, err = s.userRepo.Insert(ctx, repo.NewUserParams{
			Email:         identity.Email,
			GoogleID:      &googleID,
			Name:          identity.Name,
			AvatarURL:     avatar,
			VerifiedEmail: true,
		})
		if err == nil {
			return user, nil
		}
		if repo.IsUniqueViolation(err) {
			continue
		}
		return model.User{}, fmt.Errorf("create google account: %w", err)
	}
	return model.User{}, ErrConflictingIdentity
}

func (s *Service) startSession(ctx context.Context, user model.User) (SessionResult, error) {
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		// Login still succeeds; the stamp is informational.
		log.Printf("User %s: failed to stamp last login: %v", user.ID, err)
	}

	pair, err := s.tokens.Issue(ctx, user.ID, user.Role)
	if err != nil {
		return SessionResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	return SessionResult{User: user, Tokens: pair}, nil
}

// Refresh rotates a refresh token. The role in the new access token is
// read from the user record, so a role change takes effect at the next
// rotation at the latest.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	session, err := s.tokens.SessionForToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	if user.Status != model.StatusActive {
		return TokenPair{}, ErrAccountSuspended
	}

	return s.tokens.Rotate(ctx, session, user.Role)
}

// Logout revokes the session behind the presented refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.tokens.SessionForToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, session.ID)
}

// LogoutAll revokes every session for the authenticated user.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.RevokeAll(ctx, userID)
}

// SetRole changes a user's role and kills their outstanding sessions so
// stale access tokens age out instead of carrying the old role forever.
// This is the only code path that writes a role.
func (s *Service) SetRole(ctx context.Context, userID uuid.UUID, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		return err
	}
	return s.tokens.RevokeAll(ctx, userID)
}

// SetStatus changes a user's account status. Suspension also revokes
// all sessions so the account goes dark immediately.
func (s *Service) SetStatus(ctx context.Context, userID uuid.UUID, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := s.userRepo.UpdateStatus(ctx, userID, status); err != nil {
		return err
	}
	if status == model.StatusSuspended {
		return s.tokens.RevokeAll(ctx, userID)
	}
	return nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (model.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}
