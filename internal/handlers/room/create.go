package room

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"roomchat/internal/apperr"
	"roomchat/internal/middleware"
	"roomchat/internal/rooms"
	"roomchat/internal/utils"
)

type CreateRoomHandler struct {
	Rooms    Registry
	Sessions Syncer
	Log      logrus.FieldLogger
}

type CreateRoomRequest struct {
	Name                       string  `json:"name" validate:"required"`
	MemberIDs                  []int64 `json:"memberIds" validate:"required,min=1,dive,gt=0"`
	ShareHistoryWithNewMembers bool    `json:"shareHistoryWithNewMembers"`
}

// ServeHTTP handles POST /rooms
func (h *CreateRoomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		utils.Error(w, apperr.ErrUnauthenticated)
		return
	}

	var req CreateRoomRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	room, err := h.Rooms.CreateRoom(r.Context(), userID, rooms.CreateRoomInput{
		Name:                       req.Name,
		MemberIDs:                  req.MemberIDs,
		ShareHistoryWithNewMembers: req.ShareHistoryWithNewMembers,
	})
	if err != nil {
		utils.Error(w, err)
		return
	}

	ids := make([]int64, 0, len(room.Members))
	for _, m := range room.Members {
		ids = append(ids, m.ID)
	}
	syncUsers(r.Context(), h.Sessions, h.Log, ids)

	utils.JSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Room created", Data: room})
}
