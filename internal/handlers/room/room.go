// Package room serves the room registry and message history over HTTP.
package room

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
	"roomchat/internal/rooms"
)

type Registry interface {
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.RoomView, error)
	CreateRoom(ctx context.Context, creatorID int64, in rooms.CreateRoomInput) (models.RoomView, error)
	AddMembers(ctx context.Context, roomID, actorID int64, in rooms.AddMembersInput) ([]models.Member, error)
	GetMessagesForUser(ctx context.Context, roomID, userID int64, limit int, cursor int64) ([]models.MessageView, error)
}

// Syncer pushes membership changes to the affected users' live sessions.
type Syncer interface {
	SyncUsers(ctx context.Context, userIDs []int64) error
}

func roomIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roomId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id: %w", apperr.ErrValidation)
	}
	return id, nil
}

func syncUsers(ctx context.Context, s Syncer, log logrus.FieldLogger, ids []int64) {
	if s == nil || len(ids) == 0 {
		return
	}
	if err := s.SyncUsers(ctx, ids); err != nil {
		log.WithError(err).WithField("users", ids).Warn("sync sessions after membership change")
	}
}
