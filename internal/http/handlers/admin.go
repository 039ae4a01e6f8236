package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marketbay/server/internal/auth"
	"github.com/marketbay/server/internal/model"
	"github.com/marketbay/server/internal/repo"
)

// AdminHandler handles admin-only user management endpoints. These are
// the only operations that write role or status, and both revoke the
// target's sessions so stale tokens age out.
type AdminHandler struct {
	service *auth.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *auth.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// HandleGetUser handles GET /admin/users/{id}
func (h *AdminHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondWithData(w, http.StatusOK, toUserResponse(user))
}

// updateRoleRequest is the request body for PATCH /admin/users/{id}/role
type updateRoleRequest struct {
	Role string `json:"role"`
}

// HandleUpdateRole handles PATCH /admin/users/{id}/role
func (h *AdminHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role := model.Role(req.Role)
	if !role.Valid() {
		respondWithError(w, http.StatusBadRequest, "role must be 'user' or 'admin'")
		return
	}

	if err := h.service.SetRole(r.Context(), userID, role); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondWithData(w, http.StatusOK, map[string]string{"status": "role_updated"})
}

// updateStatusRequest is the request body for PATCH /admin/users/{id}/status
type updateStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateStatus handles PATCH /admin/users/{id}/status
func (h *AdminHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := model.Status(req.Status)
	if !status.Valid() {
		respondWithError(w, http.StatusBadRequest, "status must be 'active' or 'suspended'")
		return
	}

	if err := h.service.SetStatus(r.Context(), userID, status); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondWithData(w, http.StatusOK, map[string]string{"status": "status_updated"})
}

func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
