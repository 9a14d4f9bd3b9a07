package user

import (
	"context"
	"net/http"

	"roomchat/internal/apperr"
	"roomchat/internal/middleware"
	"roomchat/internal/models"
	"roomchat/internal/users"
	"roomchat/internal/utils"
)

type Profiles interface {
	PublicProfile(ctx context.Context, userID int64) (models.PublicUser, error)
	ListUsers(ctx context.Context, excludeID int64) ([]models.PublicUser, error)
	UpdateProfile(ctx context.Context, userID int64, upd users.ProfileUpdate) (models.PublicUser, error)
}

type MeHandler struct {
	Users Profiles
}

// ServeHTTP handles GET /users/me
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		utils.Error(w, apperr.ErrUnauthenticated)
		return
	}

	u, err := h.Users.PublicProfile(r.Context(), userID)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "User details retrieved successfully",
		Data:    u,
	})
}

type UpdateMeHandler struct {
	Users Profiles
}

type UpdateMeRequest struct {
	Username     *string `json:"username,omitempty" validate:"omitempty,min=3,max=20"`
	DisplayColor *string `json:"displayColor,omitempty" validate:"omitempty,hexcolor"`
}

// ServeHTTP handles PATCH /users/me
func (h *UpdateMeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		utils.Error(w, apperr.ErrUnauthenticated)
		return
	}

	var req UpdateMeRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	u, err := h.Users.UpdateProfile(r.Context(), userID, users.ProfileUpdate{
		Username:     req.Username,
		DisplayColor: req.DisplayColor,
	})
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Profile updated", Data: u})
}
