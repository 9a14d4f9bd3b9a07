package room

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"roomchat/internal/apperr"
	"roomchat/internal/middleware"
	"roomchat/internal/rooms"
	"roomchat/internal/utils"
)

type AddMembersHandler struct {
	Rooms    Registry
	Sessions Syncer
	Log      logrus.FieldLogger
}

type AddMembersRequest struct {
	UserIDs                    []int64 `json:"userIds" validate:"required,min=1,dive,gt=0"`
	ShareHistoryWithNewMembers bool    `json:"shareHistoryWithNewMembers"`
}

// ServeHTTP handles POST /rooms/{roomId}/members
func (h *AddMembersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	var req AddMembersRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	members, err := h.Rooms.AddMembers(r.Context(), roomID, userID, rooms.AddMembersInput{
		UserIDs:                    req.UserIDs,
		ShareHistoryWithNewMembers: req.ShareHistoryWithNewMembers,
	})
	if err != nil {
		utils.Error(w, err)
		return
	}
	syncUsers(r.Context(), h.Sessions, h.Log, req.UserIDs)

	utils.JSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Members added", Data: members})
}
