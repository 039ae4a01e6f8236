package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/marketbay/server/internal/model"
)

// TokenType discriminates the three token kinds so they can never be
// presented in each other's place.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	// TokenReset is minted by a successful OTP verification and is
	// scoped solely to setting a new password.
	TokenReset TokenType = "reset"
)

// Claims are the signed JWT claims for all token kinds.
type Claims struct {
	Role model.Role `json:"role,omitempty"`
	Type TokenType  `json:"typ"`
	// Fingerprint binds a reset token to the password hash it is
	// allowed to replace, making the token single-use without state:
	// once the password changes, the fingerprint no longer matches.
	Fingerprint string `json:"pwfp,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JWTService signs and verifies tokens with a server-held HMAC secret.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string, accessTTL, refreshTTL, resetTTL time.Duration) *JWTService {
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
	}
}

// SignAccess creates an access token carrying the user's id and role.
func (s *JWTService) SignAccess(userID uuid.UUID, role model.Role) (string, error) {
	return s.sign(Claims{
		Role: role,
		Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID.String(),
		},
	}, s.accessTTL)
}

// SignRefresh creates a refresh token whose ID matches the persisted
// session row, so revocation can be checked at verify time.
func (s *JWTService) SignRefresh(userID uuid.UUID, sessionID uuid.UUID) (string, error) {
	return s.sign(Claims{
		Type: TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID.String(),
			ID:      sessionID.String(),
		},
	}, s.refreshTTL)
}

// SignReset creates a short-lived password-reset token bound to the
// current password hash fingerprint.
func (s *JWTService) SignReset(userID uuid.UUID, fingerprint string) (string, error) {
	return s.sign(Claims{
		Type:        TokenReset,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID.String(),
			ID:      uuid.NewString(),
		},
	}, s.resetTTL)
}

func (s *JWTService) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and checks signature, expiry, and type.
// Every failure collapses into ErrInvalidToken; callers fail closed.
func (s *JWTService) Verify(tokenString string, expected TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != expected {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
