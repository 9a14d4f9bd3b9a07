package auth

import (
	"context"
	"net/http"

	"roomchat/internal/users"
	"roomchat/internal/utils"
)

type Accounts interface {
	Register(ctx context.Context, in users.RegisterInput) (users.AuthResult, error)
	Login(ctx context.Context, email, password string) (users.AuthResult, error)
}

type RegisterHandler struct {
	Users Accounts
}

type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	Username     string `json:"username" validate:"required,min=3,max=20"`
	DisplayColor string `json:"displayColor,omitempty" validate:"omitempty,hexcolor"`
}

// ServeHTTP handles POST /auth/register
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Users.Register(r.Context(), users.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		Username:     req.Username,
		DisplayColor: req.DisplayColor,
	})
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "User registered",
		Data:    res,
	})
}
