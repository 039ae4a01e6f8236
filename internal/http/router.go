package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketbay/server/internal/auth"
	"github.com/marketbay/server/internal/http/handlers"
	"github.com/marketbay/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, adminHandler *handlers.AdminHandler, tokens *auth.TokenService) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.NewHealthHandler().ServeHTTP)
	r.Method("GET", "/metrics", promhttp.Handler())

	// Brute-force protection on the endpoints that accept guessable
	// secrets. The OTP attempt ceiling is enforced in the store; these
	// limiters just cap request volume per IP.
	loginLimiter := middleware.NewRateLimiter(10*time.Minute, 20)
	resetLimiter := middleware.NewRateLimiter(10*time.Minute, 10)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(loginLimiter))
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/google", authHandler.HandleGoogleLogin)
		})
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(tokens))
			r.Post("/logout_all", authHandler.HandleLogoutAll)
		})
		r.Route("/password", func(r chi.Router) {
			r.Use(middleware.RateLimit(resetLimiter))
			r.Post("/forgot", authHandler.HandleForgotPassword)
			r.Post("/verify", authHandler.HandleVerifyReset)
			r.Post("/reset", authHandler.HandleCompleteReset)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens))
		r.Get("/me", authHandler.HandleMe)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens))
		r.Use(middleware.RequireAdmin)
		r.Get("/users/{id}", adminHandler.HandleGetUser)
		r.Patch("/users/{id}/role", adminHandler.HandleUpdateRole)
		r.Patch("/users/{id}/status", adminHandler.HandleUpdateStatus)
	})

	return r
}
