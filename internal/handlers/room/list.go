package room

import (
	"net/http"

	"roomchat/internal/apperr"
	"roomchat/internal/middleware"
	"roomchat/internal/utils"
)

type RoomListHandler struct {
	Rooms Registry
}

// ServeHTTP handles GET /rooms
func (h *RoomListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		utils.Error(w, apperr.ErrUnauthenticated)
		return
	}

	list, err := h.Rooms.ListRoomsForUser(r.Context(), userID)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "rooms fetched", Data: list})
}
