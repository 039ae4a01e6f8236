package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GoogleIdentity is the verified subset of a Google ID token that the
// identity resolver needs.
type GoogleIdentity struct {
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier verifies Google ID tokens against the provider's
// published signing keys, checking issuer and audience rather than
// trusting the payload.
type GoogleVerifier struct {
	clientID string
	issuer   string
	keys     jwt.Keyfunc
}

// NewGoogleVerifier creates a verifier backed by the given JWKS URL.
func NewGoogleVerifier(clientID, issuer, jwksURL string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		issuer:   issuer,
		keys:     newJWKSKeyfunc(jwksURL),
	}
}

// NewGoogleVerifierWithKeys creates a verifier with an explicit keyfunc
// (tests supply a static key set).
func NewGoogleVerifierWithKeys(clientID, issuer string, keys jwt.Keyfunc) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, issuer: issuer, keys: keys}
}

// Verify checks the assertion and extracts the identity. Any failure
// (signature, issuer, audience, expiry, unverified email) collapses
// into ErrInvalidAssertion.
func (v *GoogleVerifier) Verify(idToken string) (GoogleIdentity, error) {
	claims := &googleClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, v.keys,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return GoogleIdentity{}, ErrInvalidAssertion
	}
	if claims.Subject == "" || claims.Email == "" || !claims.EmailVerified {
		return GoogleIdentity{}, ErrInvalidAssertion
	}
	return GoogleIdentity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		AvatarURL: claims.Picture,
	}, nil
}

// jwks is the JSON document served at Google's certs endpoint.
type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// newJWKSKeyfunc returns a keyfunc that resolves RSA keys by kid from
// the JWKS endpoint, caching the key set briefly between fetches.
func newJWKSKeyfunc(url string) jwt.Keyfunc {
	var (
		mu        sync.Mutex
		cached    map[string]*rsa.PublicKey
		fetchedAt time.Time
	)
	const cacheTTL = time.Hour

	fetch := func() (map[string]*rsa.PublicKey, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != nil && time.Since(fetchedAt) < cacheTTL {
			return cached, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
		}

		var doc jwks
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode jwks: %w", err)
		}

		keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
		for _, k := range doc.Keys {
			if k.Kty != "RSA" {
				continue
			}
			pub, err := parseRSAKey(k.N, k.E)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		}
		cached = keys
		fetchedAt = time.Now()
		return keys, nil
	}

	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		keys, err := fetch()
		if err != nil {
			return nil, err
		}
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key, nil
	}
}

func parseRSAKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
