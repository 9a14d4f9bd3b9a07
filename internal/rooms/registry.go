package rooms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
)

const (
	MinRoomNameLen = 3
	MaxRoomNameLen = 50
)

var roomNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 _\-]+$`)

type CreateRoomInput struct {
	Name                       string
	MemberIDs                  []int64
	ShareHistoryWithNewMembers bool
}

type AddMembersInput struct {
	UserIDs                    []int64
	ShareHistoryWithNewMembers bool
}

// ValidateRoomName trims name and checks its length and character set.
func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := len(name); n < MinRoomNameLen || n > MaxRoomNameLen {
		return "", fmt.Errorf("%w: must be %d-%d characters", apperr.ErrInvalidName, MinRoomNameLen, MaxRoomNameLen)
	}
	if !roomNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: only letters, digits, spaces, '_' and '-' are allowed", apperr.ErrInvalidName)
	}
	return name, nil
}

// EnsureGeneralRoom returns the general room, creating it with creatorID as
// its creator when it does not exist yet.
func (s *Service) EnsureGeneralRoom(ctx context.Context, creatorID int64) (models.Room, error) {
	room, err := s.store.GetGeneralRoom(ctx)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return models.Room{}, err
	}

	v, err, _ := s.general.Do("general", func() (any, error) {
		return s.createGeneralRoom(ctx, creatorID)
	})
	if err != nil {
		return models.Room{}, err
	}
	return v.(models.Room), nil
}

func (s *Service) createGeneralRoom(ctx context.Context, creatorID int64) (models.Room, error) {
	if room, err := s.store.GetGeneralRoom(ctx); err == nil {
		return room, nil
	}
	if creatorID == 0 {
		return models.Room{}, fmt.Errorf("general room cannot be created without a creator: %w", apperr.ErrValidation)
	}

	room := models.Room{
		Name:      models.GeneralRoomName,
		IsGeneral: true,
		CreatedBy: creatorID,
		CreatedAt: s.timestamp(),
	}
	err := s.store.CreateRoom(ctx, &room, nil)
	if errors.Is(err, apperr.ErrConflict) {
		// another process won the race
		return s.store.GetGeneralRoom(ctx)
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("create general room: %w", err)
	}
	s.log.WithField("room_id", room.ID).Info("general room created")
	return room, nil
}

// JoinGeneralRoom makes userID a member of the general room with full
// history access. Joining twice is a no-op.
func (s *Service) JoinGeneralRoom(ctx context.Context, userID int64) (models.Room, error) {
	room, err := s.EnsureGeneralRoom(ctx, userID)
	if err != nil {
		return models.Room{}, err
	}
	_, err = s.store.AddMemberships(ctx, room.ID, []models.Membership{{
		UserID:           userID,
		CanAccessHistory: true,
		JoinedAt:         s.timestamp(),
	}})
	if err != nil {
		return models.Room{}, fmt.Errorf("join general room: %w", err)
	}
	return room, nil
}

// CreateRoom creates a room owned by creatorID. The creator always has
// history access; the other members get in.ShareHistoryWithNewMembers.
func (s *Service) CreateRoom(ctx context.Context, creatorID int64, in CreateRoomInput) (models.RoomView, error) {
	name, err := ValidateRoomName(in.Name)
	if err != nil {
		return models.RoomView{}, err
	}
	ids := dedupe(append([]int64{creatorID}, in.MemberIDs...))
	if err := s.requireUsers(ctx, ids); err != nil {
		return models.RoomView{}, err
	}

	now := s.timestamp()
	members := make([]models.Membership, 0, len(ids))
	for _, id := range ids {
		members = append(members, models.Membership{
			UserID:           id,
			CanAccessHistory: id == creatorID || in.ShareHistoryWithNewMembers,
			JoinedAt:         now,
		})
	}
	room := models.Room{Name: name, CreatedBy: creatorID, CreatedAt: now}
	if err := s.store.CreateRoom(ctx, &room, members); err != nil {
		return models.RoomView{}, fmt.Errorf("create room: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"user_id": creatorID,
		"members": len(ids),
	}).Info("room created")

	views, err := s.views(ctx, []models.Room{room}, []models.Membership{members[0]})
	if err != nil {
		return models.RoomView{}, err
	}
	return views[0], nil
}

// AddMembers adds in.UserIDs to roomID on behalf of actorID, who must be a
// member. Users that already belong to the room are skipped and their
// membership is not modified. It returns the membership of every requested
// user.
func (s *Service) AddMembers(ctx context.Context, roomID, actorID int64, in AddMembersInput) ([]models.Member, error) {
	if len(in.UserIDs) == 0 {
		return nil, fmt.Errorf("userIds must not be empty: %w", apperr.ErrValidation)
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetMembership(ctx, roomID, actorID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("user %d may not add members to room %d: %w", actorID, roomID, apperr.ErrNotAuthorized)
		}
		return nil, err
	}

	ids := dedupe(in.UserIDs)
	if err := s.requireUsers(ctx, ids); err != nil {
		return nil, err
	}

	now := s.timestamp()
	pending := make([]models.Membership, 0, len(ids))
	for _, id := range ids {
		pending = append(pending, models.Membership{
			UserID:           id,
			CanAccessHistory: in.ShareHistoryWithNewMembers,
			JoinedAt:         now,
		})
	}
	// Only rows inserted here carry the share flag; existing memberships keep
	// whatever history access they had.
	inserted, err := s.store.AddMemberships(ctx, roomID, pending)
	if err != nil {
		return nil, fmt.Errorf("add members: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"room_id":  roomID,
		"user_id":  actorID,
		"inserted": len(inserted),
		"skipped":  len(ids) - len(inserted),
	}).Info("members added")

	all, err := s.store.ListMembers(ctx, []int64{roomID})
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make([]models.Member, 0, len(ids))
	for _, m := range all {
		if wanted[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListRoomsForUser returns the user's rooms ordered by when they joined.
func (s *Service) ListRoomsForUser(ctx context.Context, userID int64) ([]models.RoomView, error) {
	memberships, err := s.store.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(memberships))
	for i, m := range memberships {
		ids[i] = m.RoomID
	}
	found, err := s.store.GetRooms(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Room, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	rooms := make([]models.Room, 0, len(memberships))
	for _, m := range memberships {
		room, ok := byID[m.RoomID]
		if !ok {
			return nil, fmt.Errorf("room %d: %w", m.RoomID, apperr.ErrNotFound)
		}
		rooms = append(rooms, room)
	}
	return s.views(ctx, rooms, memberships)
}

// views pairs rooms[i] with memberships[i] and attaches member lists.
func (s *Service) views(ctx context.Context, rooms []models.Room, memberships []models.Membership) ([]models.RoomView, error) {
	out := make([]models.RoomView, 0, len(rooms))
	if len(rooms) == 0 {
		return out, nil
	}
	ids := make([]int64, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	members, err := s.store.ListMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byRoom := make(map[int64][]models.UserSummary, len(rooms))
	for _, m := range members {
		byRoom[m.RoomID] = append(byRoom[m.RoomID], m.UserSummary)
	}
	for i, r := range rooms {
		list := byRoom[r.ID]
		if list == nil {
			list = []models.UserSummary{}
		}
		out = append(out, models.RoomView{
			ID:         r.ID,
			Name:       r.Name,
			IsGeneral:  r.IsGeneral,
			Membership: memberships[i].View(),
			Members:    list,
		})
	}
	return out, nil
}
