package room

import (
	"fmt"
	"net/http"
	"strconv"

	"roomchat/internal/apperr"
	"roomchat/internal/middleware"
	"roomchat/internal/utils"
)

type RoomMessagesHandler struct {
	Rooms Registry
}

// ServeHTTP handles GET /rooms/{roomId}/messages?limit=&cursor=
func (h *RoomMessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		utils.Error(w, apperr.ErrUnauthenticated)
		return
	}
	roomID, err := roomIDParam(r)
	if err != nil {
		utils.Error(w, err)
		return
	}

	q := r.URL.Query()
	// a missing or non-numeric limit means the default page size
	limit, _ := strconv.Atoi(q.Get("limit"))
	var cursor int64
	if s := q.Get("cursor"); s != "" {
		cursor, err = strconv.ParseInt(s, 10, 64)
		if err != nil || cursor <= 0 {
			utils.Error(w, fmt.Errorf("invalid cursor: %w", apperr.ErrValidation))
			return
		}
	}

	msgs, err := h.Rooms.GetMessagesForUser(r.Context(), roomID, userID, limit, cursor)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Data: msgs})
}
