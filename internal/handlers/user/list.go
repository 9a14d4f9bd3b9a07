package user

import (
	"net/http"

	"roomchat/internal/apperr"
	"roomchat/internal/middleware"
	"roomchat/internal/utils"
)

type ListHandler struct {
	Users Profiles
}

// ServeHTTP handles GET /users
func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		utils.Error(w, apperr.ErrUnauthenticated)
		return
	}

	list, err := h.Users.ListUsers(r.Context(), userID)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Data: list})
}
