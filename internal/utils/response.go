package utils

import (
	"encoding/json"
	"net/http"

	"roomchat/internal/apperr"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Error writes err with the status its apperr class maps to.
func Error(w http.ResponseWriter, err error) {
	JSON(w, apperr.Status(err), APIResponse{Success: false, Message: apperr.Public(err)})
}
