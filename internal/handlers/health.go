package handlers

import (
	"context"
	"net/http"
	"time"

	"roomchat/internal/utils"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	DB Pinger
}

// ServeHTTP handles GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.DB != nil {
		if err := h.DB.Ping(ctx); err != nil {
			utils.JSON(w, http.StatusServiceUnavailable, utils.APIResponse{
				Success: false,
				Message: "database unavailable",
				Data:    map[string]string{"status": "degraded"},
			})
			return
		}
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}
