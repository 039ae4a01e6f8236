package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGoogleClientID = "marketbay-client-id.apps.googleusercontent.com"
	testGoogleIssuer   = "https://accounts.google.com"
	testGoogleKid      = "test-key-1"
)

var testGoogleKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

func testKeyfunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid != testGoogleKid {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return &testGoogleKey.PublicKey, nil
}

// signGoogleToken mints an ID token with sensible defaults, letting
// tests override individual claims.
func signGoogleToken(t *testing.T, overrides map[string]any) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":            testGoogleIssuer,
		"aud":            testGoogleClientID,
		"sub":            "google-subject-123",
		"email":          "alice@example.com",
		"email_verified": true,
		"name":           "Alice Example",
		"picture":        "https://lh3.example.com/alice.png",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testGoogleKid
	signed, err := token.SignedString(testGoogleKey)
	require.NoError(t, err)
	return signed
}

func newTestGoogleVerifier() *GoogleVerifier {
	return NewGoogleVerifierWithKeys(testGoogleClientID, testGoogleIssuer, testKeyfunc)
}

func TestGoogleVerify_ValidAssertion(t *testing.T) {
	v := newTestGoogleVerifier()

	identity, err := v.Verify(signGoogleToken(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "google-subject-123", identity.Subject)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice Example", identity.Name)
	assert.Equal(t, "https://lh3.example.com/alice.png", identity.AvatarURL)
}

func TestGoogleVerify_Rejections(t *testing.T) {
	v := newTestGoogleVerifier()

	cases := map[string]map[string]any{
		"wrong issuer":     {"iss": "https://evil.example.com"},
		"wrong audience":   {"aud": "someone-elses-client-id"},
		"expired":          {"exp": time.Now().Add(-time.Hour).Unix()},
		"unverified email": {"email_verified": false},
		"missing subject":  {"sub": ""},
		"missing email":    {"email": ""},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(signGoogleToken(t, overrides))
			assert.ErrorIs(t, err, ErrInvalidAssertion)
		})
	}
}

func TestGoogleVerify_WrongKeyRejected(t *testing.T) {
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"iss":            testGoogleIssuer,
		"aud":            testGoogleClientID,
		"sub":            "google-subject-123",
		"email":          "alice@example.com",
		"email_verified": true,
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testGoogleKid
	signed, err := token.SignedString(otherKey)
	require.NoError(t, err)

	_, err = newTestGoogleVerifier().Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestGoogleVerify_HMACForgeryRejected(t *testing.T) {
	// An attacker who knows the JWKS cannot downgrade to HS256.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":            testGoogleIssuer,
		"aud":            testGoogleClientID,
		"sub":            "google-subject-123",
		"email":          "alice@example.com",
		"email_verified": true,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = testGoogleKid
	signed, err := token.SignedString([]byte("guessable"))
	require.NoError(t, err)

	_, err = newTestGoogleVerifier().Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}
