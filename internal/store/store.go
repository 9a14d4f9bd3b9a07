// Package store defines the persistence contract for users, rooms,
// memberships, messages and reactions, with a MySQL implementation and an
// in-memory one.
//
// Implementations report missing rows as apperr.ErrNotFound and unique-key
// collisions as apperr.ErrConflict. Timestamps are assigned by callers and
// stored as given.
package store

import (
	"context"
	"time"

	"roomchat/internal/models"
)

// MessageQuery selects one page of a room's log, newest first.
type MessageQuery struct {
	RoomID int64
	// Since, when non-zero, excludes messages created before it.
	Since time.Time
	// Before, when set, excludes the cursor message and everything after it.
	Before *models.Message
	Limit  int
}

// UserUpdate carries the profile fields to change; nil leaves a field as is.
type UserUpdate struct {
	Username     *string
	DisplayColor *string
	UpdatedAt    time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	// GetUsers omits ids that do not exist.
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	// ListUsers returns everyone except excludeID ordered by username.
	ListUsers(ctx context.Context, excludeID int64) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (models.User, error)
	// DeleteUser removes the account and its memberships. Deleting a missing
	// user is a no-op.
	DeleteUser(ctx context.Context, id int64) error
}

type RoomStore interface {
	GetRoom(ctx context.Context, id int64) (models.Room, error)
	// GetRooms omits ids that do not exist.
	GetRooms(ctx context.Context, ids []int64) ([]models.Room, error)
	GetGeneralRoom(ctx context.Context) (models.Room, error)
	// CreateRoom inserts the room and its memberships atomically. Creating a
	// second general room fails with apperr.ErrConflict.
	CreateRoom(ctx context.Context, room *models.Room, members []models.Membership) error
}

type MembershipStore interface {
	GetMembership(ctx context.Context, roomID, userID int64) (models.Membership, error)
	// AddMemberships inserts the memberships that do not exist yet and
	// returns the user ids it inserted. Existing rows are left untouched.
	AddMemberships(ctx context.Context, roomID int64, members []models.Membership) ([]int64, error)
	// ListMembershipsByUser is ordered by joinedAt then room id.
	ListMembershipsByUser(ctx context.Context, userID int64) ([]models.Membership, error)
	// ListMembers returns the members of every given room, ordered by room,
	// joinedAt and user id.
	ListMembers(ctx context.Context, roomIDs []int64) ([]models.Member, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id int64) (models.Message, error)
	ListMessages(ctx context.Context, q MessageQuery) ([]models.Message, error)
}

type ReactionStore interface {
	// AddReaction is a no-op when the triple already exists.
	AddReaction(ctx context.Context, r *models.Reaction) error
	// RemoveReaction is a no-op when the triple does not exist.
	RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error
	// ListReactions is ordered by createdAt then id.
	ListReactions(ctx context.Context, messageIDs []int64) ([]models.Reaction, error)
}

type Store interface {
	UserStore
	RoomStore
	MembershipStore
	MessageStore
	ReactionStore
	Ping(ctx context.Context) error
}
