package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
)

// Memory is a map-backed Store. It keeps the same uniqueness rules as the
// MySQL schema and is safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	userSeq     int64
	roomSeq     int64
	messageSeq  int64
	reactionSeq int64

	users       map[int64]*models.User
	rooms       map[int64]*models.Room
	memberships map[string]*models.Membership // "roomID:userID"
	messages    map[int64]*models.Message
	reactions   map[string]*models.Reaction // "messageID:userID:emoji"
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[int64]*models.User),
		rooms:       make(map[int64]*models.Room),
		memberships: make(map[string]*models.Membership),
		messages:    make(map[int64]*models.Message),
		reactions:   make(map[string]*models.Reaction),
	}
}

func membershipKey(roomID, userID int64) string {
	return fmt.Sprintf("%d:%d", roomID, userID)
}

func reactionKey(messageID, userID int64, emoji string) string {
	return fmt.Sprintf("%d:%d:%s", messageID, userID, emoji)
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %q: %w", u.Email, apperr.ErrConflict)
		}
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("username %q: %w", u.Username, apperr.ErrConflict)
		}
	}
	s.userSeq++
	u.ID = s.userSeq
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Memory) GetUser(ctx context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}
	return *u, nil
}

func (s *Memory) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return *u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", email, apperr.ErrNotFound)
}

func (s *Memory) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return *u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
}

func (s *Memory) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Memory) ListUsers(ctx context.Context, excludeID int64) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if u.ID != excludeID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Username), strings.ToLower(out[j].Username)
		if a == b {
			return out[i].ID < out[j].ID
		}
		return a < b
	})
	return out, nil
}

func (s *Memory) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}
	if upd.Username != nil {
		for _, other := range s.users {
			if other.ID != id && strings.EqualFold(other.Username, *upd.Username) {
				return models.User{}, fmt.Errorf("username %q: %w", *upd.Username, apperr.ErrConflict)
			}
		}
		u.Username = *upd.Username
	}
	if upd.DisplayColor != nil {
		u.DisplayColor = *upd.DisplayColor
	}
	if !upd.UpdatedAt.IsZero() {
		u.UpdatedAt = upd.UpdatedAt
	}
	return *u, nil
}

func (s *Memory) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, id)
	for key, m := range s.memberships {
		if m.UserID == id {
			delete(s.memberships, key)
		}
	}
	return nil
}

func (s *Memory) GetRoom(ctx context.Context, id int64) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return models.Room{}, fmt.Errorf("room %d: %w", id, apperr.ErrNotFound)
	}
	return *r, nil
}

func (s *Memory) GetRooms(ctx context.Context, ids []int64) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Room, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if r, ok := s.rooms[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Memory) GetGeneralRoom(ctx context.Context) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rooms {
		if r.IsGeneral {
			return *r, nil
		}
	}
	return models.Room{}, fmt.Errorf("general room: %w", apperr.ErrNotFound)
}

func (s *Memory) CreateRoom(ctx context.Context, room *models.Room, members []models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.IsGeneral {
		for _, r := range s.rooms {
			if r.IsGeneral {
				return fmt.Errorf("general room exists: %w", apperr.ErrConflict)
			}
		}
	}
	seen := make(map[int64]bool, len(members))
	for _, m := range members {
		if _, ok := s.users[m.UserID]; !ok {
			return fmt.Errorf("user %d: %w", m.UserID, apperr.ErrNotFound)
		}
		if seen[m.UserID] {
			return fmt.Errorf("member %d listed twice: %w", m.UserID, apperr.ErrConflict)
		}
		seen[m.UserID] = true
	}

	s.roomSeq++
	room.ID = s.roomSeq
	cp := *room
	s.rooms[room.ID] = &cp
	for _, m := range members {
		m.RoomID = room.ID
		s.memberships[membershipKey(room.ID, m.UserID)] = &m
	}
	return nil
}

func (s *Memory) GetMembership(ctx context.Context, roomID, userID int64) (models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[membershipKey(roomID, userID)]
	if !ok {
		return models.Membership{}, fmt.Errorf("membership %d/%d: %w", roomID, userID, apperr.ErrNotFound)
	}
	return *m, nil
}

func (s *Memory) AddMemberships(ctx context.Context, roomID int64, members []models.Membership) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, fmt.Errorf("room %d: %w", roomID, apperr.ErrNotFound)
	}
	for _, m := range members {
		if _, ok := s.users[m.UserID]; !ok {
			return nil, fmt.Errorf("user %d: %w", m.UserID, apperr.ErrNotFound)
		}
	}

	var inserted []int64
	for _, m := range members {
		key := membershipKey(roomID, m.UserID)
		if _, exists := s.memberships[key]; exists {
			continue
		}
		m.RoomID = roomID
		s.memberships[key] = &m
		inserted = append(inserted, m.UserID)
	}
	return inserted, nil
}

func (s *Memory) ListMembershipsByUser(ctx context.Context, userID int64) ([]models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Membership
	for _, m := range s.memberships {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].RoomID < out[j].RoomID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *Memory) ListMembers(ctx context.Context, roomIDs []int64) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]bool, len(roomIDs))
	for _, id := range roomIDs {
		wanted[id] = true
	}
	var out []models.Member
	for _, m := range s.memberships {
		if !wanted[m.RoomID] {
			continue
		}
		u, ok := s.users[m.UserID]
		if !ok {
			continue
		}
		out = append(out, models.Member{
			UserSummary:      u.Summary(),
			RoomID:           m.RoomID,
			CanAccessHistory: m.CanAccessHistory,
			JoinedAt:         m.JoinedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *Memory) CreateMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[m.RoomID]; !ok {
		return fmt.Errorf("room %d: %w", m.RoomID, apperr.ErrNotFound)
	}
	s.messageSeq++
	m.ID = s.messageSeq
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *Memory) GetMessage(ctx context.Context, id int64) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return models.Message{}, fmt.Errorf("message %d: %w", id, apperr.ErrNotFound)
	}
	return *m, nil
}

func (s *Memory) ListMessages(ctx context.Context, q MessageQuery) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID != q.RoomID {
			continue
		}
		if !q.Since.IsZero() && m.CreatedAt.Before(q.Since) {
			continue
		}
		if q.Before != nil && !m.Before(*q.Before) {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Before(out[i]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Memory) AddReaction(ctx context.Context, r *models.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[r.MessageID]; !ok {
		return fmt.Errorf("message %d: %w", r.MessageID, apperr.ErrNotFound)
	}
	key := reactionKey(r.MessageID, r.UserID, r.Emoji)
	if existing, ok := s.reactions[key]; ok {
		*r = *existing
		return nil
	}
	s.reactionSeq++
	r.ID = s.reactionSeq
	cp := *r
	s.reactions[key] = &cp
	return nil
}

func (s *Memory) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reactions, reactionKey(messageID, userID, emoji))
	return nil
}

func (s *Memory) ListReactions(ctx context.Context, messageIDs []int64) ([]models.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	var out []models.Reaction
	for _, r := range s.reactions {
		if wanted[r.MessageID] {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
