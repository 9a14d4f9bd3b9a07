package rooms

import (
	"context"
	"fmt"
	"strings"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
	"roomchat/internal/store"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

// ClampLimit applies the page size rules: zero means the default, anything
// else is clamped to [1, MaxMessageLimit].
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultMessageLimit
	case limit < 1:
		return 1
	case limit > MaxMessageLimit:
		return MaxMessageLimit
	default:
		return limit
	}
}

// CreateMessage appends content to roomID's log on behalf of a member.
func (s *Service) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (models.MessageView, error) {
	if _, err := s.ResolveEffectiveHistory(ctx, roomID, senderID); err != nil {
		return models.MessageView{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.MessageView{}, apperr.ErrEmptyContent
	}

	m := models.Message{
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.timestamp(),
	}
	if err := s.store.CreateMessage(ctx, &m); err != nil {
		return models.MessageView{}, fmt.Errorf("create message: %w", err)
	}
	views, err := s.hydrate(ctx, []models.Message{m})
	if err != nil {
		return models.MessageView{}, err
	}
	return views[0], nil
}

// GetMessagesForUser returns up to limit messages visible to userID, oldest
// first. A non-zero cursor resumes strictly before that message.
func (s *Service) GetMessagesForUser(ctx context.Context, roomID, userID int64, limit int, cursor int64) ([]models.MessageView, error) {
	membership, err := s.ResolveEffectiveHistory(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	q := store.MessageQuery{RoomID: roomID, Limit: ClampLimit(limit)}
	if !membership.CanAccessHistory {
		q.Since = membership.JoinedAt
	}
	if cursor != 0 {
		before, err := s.store.GetMessage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("cursor: %w", err)
		}
		if before.RoomID != roomID {
			return nil, fmt.Errorf("cursor %d: %w", cursor, apperr.ErrNotFound)
		}
		q.Before = &before
	}

	msgs, err := s.store.ListMessages(ctx, q)
	if err != nil {
		return nil, err
	}
	// newest-first from the store, oldest-first to the caller
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return s.hydrate(ctx, msgs)
}

// hydrate attaches sender summaries and reactions, keeping msgs' order.
func (s *Service) hydrate(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	out := make([]models.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}

	ids := make([]int64, len(msgs))
	userIDs := make([]int64, 0, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		userIDs = append(userIDs, m.SenderID)
	}
	reactions, err := s.store.ListReactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range reactions {
		userIDs = append(userIDs, r.UserID)
	}
	users, err := s.summaries(ctx, dedupe(userIDs))
	if err != nil {
		return nil, err
	}

	byMessage := make(map[int64][]models.ReactionView, len(msgs))
	for _, r := range reactions {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], models.ReactionView{
			ID:    r.ID,
			Emoji: r.Emoji,
			User:  users[r.UserID],
		})
	}
	for _, m := range msgs {
		rs := byMessage[m.ID]
		if rs == nil {
			rs = []models.ReactionView{}
		}
		out = append(out, models.MessageView{
			ID:        m.ID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			RoomID:    m.RoomID,
			Sender:    users[m.SenderID],
			Reactions: rs,
		})
	}
	return out, nil
}
