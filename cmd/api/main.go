package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/marketbay/server/internal/auth"
	"github.com/marketbay/server/internal/config"
	"github.com/marketbay/server/internal/db"
	httprouter "github.com/marketbay/server/internal/http"
	"github.com/marketbay/server/internal/http/handlers"
	"github.com/marketbay/server/internal/mail"
	"github.com/marketbay/server/internal/repo"

	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	refreshRepo := repo.NewRefreshRepo(database)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ResetTokenTTL)
	tokenService := auth.NewTokenService(jwtService, refreshRepo, cfg.RefreshTokenTTL)

	var googleVerifier *auth.GoogleVerifier
	if cfg.GoogleClientID != "" {
		googleVerifier = auth.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleIssuer, cfg.GoogleJWKSURL)
	} else {
		log.Printf("GOOGLE_CLIENT_ID not set; Google login disabled")
	}

	mailer := mail.New(mail.Settings{
		From:         cfg.MailFrom,
		ResendAPIKey: cfg.ResendAPIKey,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
	})

	authService := auth.NewService(userRepo, tokenService, googleVerifier)
	otpService := auth.NewOtpService(otpRepo, userRepo, tokenService, mailer, auth.OtpConfig{
		Salt:        cfg.OTPSalt,
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		Cooldown:    cfg.OTPCooldown,
	})

	authHandler := handlers.NewAuthHandler(authService, otpService, handlers.CookieConfig{
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Secure:     true,
	})
	adminHandler := handlers.NewAdminHandler(authService)

	router := httprouter.NewRouter(authHandler, adminHandler, tokenService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepExpired(sweepCtx, otpRepo, refreshRepo)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// sweepExpired periodically deletes dead OTP challenges and refresh
// sessions. Expiry is checked at verify time regardless; this only
// keeps the tables from growing without bound.
func sweepExpired(ctx context.Context, otpRepo repo.OtpRepo, refreshRepo repo.RefreshRepo) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-24 * time.Hour)
		if n, err := otpRepo.DeleteExpired(ctx, cutoff); err != nil {
			log.Printf("Sweep: delete expired OTP challenges: %v", err)
		} else if n > 0 {
			log.Printf("Sweep: deleted %d expired OTP challenges", n)
		}
		if n, err := refreshRepo.DeleteDead(ctx, cutoff); err != nil {
			log.Printf("Sweep: delete dead refresh sessions: %v", err)
		} else if n > 0 {
			log.Printf("Sweep: deleted %d dead refresh sessions", n)
		}
	}
}
