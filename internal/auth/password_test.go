package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword_roundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("correct horse battery", hash) {
		t.Error("correct password should verify")
	}
	if CheckPassword("wrong password", hash) {
		t.Error("wrong password should not verify")
	}
}

func TestHashPassword_policy(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("short password: want ErrWeakPassword, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 73)); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("over-long password: want ErrWeakPassword, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 72)); err != nil {
		t.Errorf("72-byte password should be accepted: %v", err)
	}
}

func TestHashPassword_saltedPerCall(t *testing.T) {
	h1, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Error("bcrypt hashes should differ between calls")
	}
}

func TestHashOtpHex_consistency(t *testing.T) {
	email, code, salt := "alice@example.com", "123456", "test-salt"
	h1 := hashOtpHex(email, code, salt)
	h2 := hashOtpHex(email, code, salt)
	if h1 != h2 {
		t.Errorf("hash should be deterministic: %q != %q", h1, h2)
	}
	if len(hashOtpBytes(email, code, salt)) != 32 {
		t.Error("SHA-256 hash should be 32 bytes")
	}
}

func TestHashOtpHex_differentInputsDifferentHash(t *testing.T) {
	salt := "salt"
	h1 := hashOtpHex("alice@example.com", "123456", salt)
	h2 := hashOtpHex("bob@example.com", "123456", salt)
	h3 := hashOtpHex("alice@example.com", "654321", salt)
	if h1 == h2 || h1 == h3 || h2 == h3 {
		t.Error("different inputs should produce different hashes")
	}
}

func TestGenerateOtpCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateOtpCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != otpCodeLength {
			t.Fatalf("code %q should have %d digits", code, otpCodeLength)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q should be numeric", code)
			}
		}
	}
}
