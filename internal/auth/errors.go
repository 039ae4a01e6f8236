package auth

import "errors"

// Sentinel errors for every authentication outcome a caller can act on.
// Handlers map these to HTTP codes; anything not listed here is an
// internal failure.
var (
	// ErrInvalidCredentials covers unknown email, OAuth-only accounts
	// presented with a password, and wrong passwords. Deliberately one
	// error so responses never reveal which case occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountSuspended is returned when a suspended account passes
	// credential checks on any login path.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrInvalidAssertion is returned when a Google ID token fails
	// signature, issuer, audience, or expiry verification.
	ErrInvalidAssertion = errors.New("invalid identity assertion")
	// ErrEmailTaken is returned on registration with an email that
	// already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidToken covers signature mismatch, expiry, type mismatch,
	// and revoked refresh tokens. Callers treat it as "no session".
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTokenReused is returned when an already-rotated refresh token
	// is presented again; the whole token family is revoked in response.
	ErrTokenReused = errors.New("refresh token reuse detected")
	// ErrConflictingIdentity is returned when a concurrent identity
	// merge for the same email could not be resolved.
	ErrConflictingIdentity = errors.New("conflicting identity")
	// ErrNoActiveChallenge is returned when no usable OTP challenge
	// exists for the email.
	ErrNoActiveChallenge = errors.New("no active reset challenge")
	// ErrChallengeExpired is returned for a correct-or-not code past its TTL.
	ErrChallengeExpired = errors.New("reset challenge expired")
	// ErrTooManyAttempts is returned once the attempt ceiling is hit;
	// the challenge is dead from then on regardless of correctness.
	ErrTooManyAttempts = errors.New("too many reset attempts")
	// ErrWeakPassword is returned when a new password fails the policy.
	ErrWeakPassword = errors.New("password does not meet requirements")
)
