package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/marketbay/server/internal/auth"
	"github.com/marketbay/server/internal/mail"
	"github.com/marketbay/server/internal/middleware"
	"github.com/marketbay/server/internal/model"
)

const refreshTokenCookie = "refresh_token"

// CookieConfig controls how session cookies are issued.
type CookieConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secure     bool
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service *auth.Service
	otp     *auth.OtpService
	cookies CookieConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service, otp *auth.OtpService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		otp:     otp,
		cookies: cookies,
	}
}

// userResponse is the user object in API responses
type userResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	Role          string  `json:"role"`
	VerifiedEmail bool    `json:"verified_email"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		Name:          u.Name,
		AvatarURL:     u.AvatarURL,
		Role:          string(u.Role),
		VerifiedEmail: u.VerifiedEmail,
	}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.service.Register(r.Context(), req.Email, req.Password, strings.TrimSpace(req.Name))
	if err != nil {
		h.respondAuthError(w, req.Email, "registration failed", err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	respondWithData(w, http.StatusCreated, toUserResponse(result.User))
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.service.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(w, req.Email, "login failed", err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	respondWithData(w, http.StatusOK, toUserResponse(result.User))
}

// googleLoginRequest is the request body for POST /auth/google
type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

// HandleGoogleLogin handles POST /auth/google
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		respondWithError(w, http.StatusBadRequest, "id_token is required")
		return
	}

	result, err := h.service.LoginWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		h.respondAuthError(w, "", "google login failed", err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	respondWithData(w, http.StatusOK, toUserResponse(result.User))
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFrom(r)
	if refreshToken == "" {
		respondWithError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	pair, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.clearSessionCookies(w)
		h.respondAuthError(w, "", "token refresh failed", err)
		return
	}

	h.setSessionCookies(w, pair)
	respondWithData(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if refreshToken := h.refreshTokenFrom(r); refreshToken != "" {
		// Best effort: an already-dead token still clears the cookies.
		if err := h.service.Logout(r.Context(), refreshToken); err != nil {
			log.Printf("Logout: revoke failed: %v", err)
		}
	}
	h.clearSessionCookies(w)
	respondWithData(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// HandleLogoutAll handles POST /auth/logout_all (protected)
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.service.LogoutAll(r.Context(), userID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.clearSessionCookies(w)
	respondWithData(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// forgotPasswordRequest is the request body for POST /auth/password/forgot
type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// HandleForgotPassword handles POST /auth/password/forgot. The response
// is identical whether or not the email has an account.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.otp.RequestReset(r.Context(), req.Email); err != nil {
		// Internal failure only; delivery problems never reach here.
		log.Printf("Email %s: reset request failed: %v", mail.MaskAddress(req.Email), err)
		respondWithError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	respondWithData(w, http.StatusOK, map[string]string{"status": "code_sent"})
}

// verifyResetRequest is the request body for POST /auth/password/verify
type verifyResetRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// HandleVerifyReset handles POST /auth/password/verify
func (h *AuthHandler) HandleVerifyReset(w http.ResponseWriter, r *http.Request) {
	var req verifyResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		respondWithError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	resetToken, err := h.otp.VerifyReset(r.Context(), req.Email, req.Code)
	if err != nil {
		h.respondAuthError(w, req.Email, "reset verification failed", err)
		return
	}

	respondWithData(w, http.StatusOK, map[string]string{"reset_token": resetToken})
}

// completeResetRequest is the request body for POST /auth/password/reset
type completeResetRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

// HandleCompleteReset handles POST /auth/password/reset
func (h *AuthHandler) HandleCompleteReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResetToken == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "reset_token and new_password are required")
		return
	}

	if err := h.otp.CompleteReset(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		h.respondAuthError(w, "", "password reset failed", err)
		return
	}

	respondWithData(w, http.StatusOK, map[string]string{"status": "password_updated"})
}

// HandleMe handles GET /me (protected)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "user not found")
		return
	}
	respondWithData(w, http.StatusOK, toUserResponse(user))
}

// refreshTokenFrom prefers the cookie, then the request body.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return strings.TrimSpace(body.RefreshToken)
	}
	return ""
}

// setSessionCookies delivers both tokens as httpOnly, same-site-strict
// cookies so they are unreadable to injected script.
func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(h.cookies.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     "/auth",
		MaxAge:   int(h.cookies.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct {
		name, path string
	}{
		{middleware.AccessTokenCookie, "/"},
		{refreshTokenCookie, "/auth"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// respondAuthError maps service errors to client responses. Messages
// stay generic so responses never reveal whether an email exists.
func (h *AuthHandler) respondAuthError(w http.ResponseWriter, email, logContext string, err error) {
	if email != "" {
		log.Printf("Email %s: %s: %v", mail.MaskAddress(email), logContext, err)
	} else {
		log.Printf("%s: %v", logContext, err)
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountSuspended):
		respondWithError(w, http.StatusForbidden, "account suspended")
	case errors.Is(err, auth.ErrInvalidAssertion):
		respondWithError(w, http.StatusUnauthorized, "invalid identity assertion")
	case errors.Is(err, auth.ErrEmailTaken):
		respondWithError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrTokenReused), errors.Is(err, auth.ErrInvalidToken):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrConflictingIdentity):
		respondWithError(w, http.StatusConflict, "conflicting identity, retry login")
	case errors.Is(err, auth.ErrNoActiveChallenge):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired code")
	case errors.Is(err, auth.ErrChallengeExpired):
		respondWithError(w, http.StatusUnauthorized, "code expired, request a new one")
	case errors.Is(err, auth.ErrTooManyAttempts):
		respondWithError(w, http.StatusTooManyRequests, "too many attempts, request a new code")
	case errors.Is(err, auth.ErrWeakPassword):
		respondWithError(w, http.StatusBadRequest, "password does not meet requirements")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondWithData sends a success envelope
func respondWithData(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
