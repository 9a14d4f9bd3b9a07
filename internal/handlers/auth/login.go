package auth

import (
	"net/http"

	"roomchat/internal/utils"
)

type LoginHandler struct {
	Users Accounts
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ServeHTTP handles POST /auth/login
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Login successful",
		Data:    res,
	})
}
