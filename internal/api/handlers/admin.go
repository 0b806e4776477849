package handlers

import (
	"net/http"

	"github.com/rohits-web03/vectorvault/internal/auth"
	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/utils"
)

type ToggleAdminResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// ListUsers godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.User
// @Failure 403 {object} utils.ErrorPayload
// @Router /admin/users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	utils.JSONResponse(w, http.StatusOK, users)
}

// GetUser godoc
// @Summary Get a user
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} utils.ErrorPayload
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	user, err := h.auth.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	utils.JSONResponse(w, http.StatusOK, user)
}

// CreateUser godoc
// @Summary Create a user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body auth.NewUser true "New user"
// @Success 201 {object} models.User
// @Failure 400 {object} utils.ErrorPayload
// @Failure 409 {object} utils.ErrorPayload
// @Router /admin/users [post]
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in auth.NewUser
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	user, err := h.auth.CreateUser(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	utils.JSONResponse(w, http.StatusCreated, user)
}

// UpdateUser godoc
// @Summary Update a user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body auth.UserUpdate true "Fields to change"
// @Success 200 {object} models.User
// @Failure 400 {object} utils.ErrorPayload
// @Failure 409 {object} utils.ErrorPayload
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	var upd auth.UserUpdate
	if err := decodeJSON(r, &upd); err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	user, err := h.auth.UpdateUser(r.Context(), currentUser(r), id, upd)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	utils.JSONResponse(w, http.StatusOK, user)
}

// DeleteUser godoc
// @Summary Delete a user
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} utils.MessagePayload
// @Failure 400 {object} utils.ErrorPayload
// @Failure 409 {object} utils.ErrorPayload
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	if err := h.auth.DeleteUser(r.Context(), currentUser(r), id); err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.MessagePayload{Message: "User deleted successfully"})
}

// ToggleAdmin godoc
// @Summary Grant or revoke admin rights
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} ToggleAdminResponse
// @Failure 400 {object} utils.ErrorPayload
// @Failure 409 {object} utils.ErrorPayload
// @Router /admin/users/{id}/toggle-admin [put]
func (h *Handler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	user, err := h.auth.ToggleAdmin(r.Context(), currentUser(r), id)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	msg := "Admin rights revoked"
	if user.IsAdmin {
		msg = "Admin rights granted"
	}
	utils.JSONResponse(w, http.StatusOK, ToggleAdminResponse{Message: msg, User: user})
}

// ResetPassword godoc
// @Summary Set a new password for a user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} utils.MessagePayload
// @Failure 400 {object} utils.ErrorPayload
// @Router /admin/users/{id}/reset-password [put]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	var req ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	if err := h.auth.ResetPassword(r.Context(), currentUser(r), id, req.Password); err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.MessagePayload{Message: "Password reset successfully"})
}
