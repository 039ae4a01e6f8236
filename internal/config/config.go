package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration

	// Google OAuth settings. Empty ClientID disables the Google login route.
	GoogleClientID string
	GoogleIssuer   string
	GoogleJWKSURL  string

	// OTP password-reset settings.
	OTPSalt        string
	OTPTTL         time.Duration
	OTPMaxAttempts int
	OTPCooldown    time.Duration

	// Email delivery. A Resend API key selects the HTTP provider;
	// otherwise SMTP settings select the relay; neither selects a
	// log-only mailer (dev).
	MailFrom     string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            "8080",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ResetTokenTTL:   10 * time.Minute,
		GoogleIssuer:    "https://accounts.google.com",
		GoogleJWKSURL:   "https://www.googleapis.com/oauth2/v3/certs",
		OTPTTL:          10 * time.Minute,
		OTPMaxAttempts:  5,
		OTPCooldown:     60 * time.Second,
		MailFrom:        "no-reply@marketbay.dev",
		SMTPPort:        587,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.OTPSalt = os.Getenv("OTP_SALT")
	if cfg.OTPSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
		}
		cfg.AccessTokenTTL = d
	}
	if v := os.Getenv("REFRESH_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REFRESH_TOKEN_TTL: %w", err)
		}
		cfg.RefreshTokenTTL = d
	}
	if v := os.Getenv("OTP_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OTP_TTL: %w", err)
		}
		cfg.OTPTTL = d
	}
	if v := os.Getenv("OTP_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OTP_COOLDOWN: %w", err)
		}
		cfg.OTPCooldown = d
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if v := os.Getenv("GOOGLE_ISSUER"); v != "" {
		cfg.GoogleIssuer = v
	}
	if v := os.Getenv("GOOGLE_JWKS_URL"); v != "" {
		cfg.GoogleJWKSURL = v
	}

	if v := os.Getenv("MAIL_FROM"); v != "" {
		cfg.MailFrom = v
	}
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = p
	}

	return cfg, nil
}
