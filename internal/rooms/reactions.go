package rooms

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
)

// MaxEmojiLen matches the emoji column width, counted in characters.
const MaxEmojiLen = 64

// Reactions use two idempotent calls rather than a toggle: adding an
// existing reaction and removing a missing one both succeed without change.

func (s *Service) AddReaction(ctx context.Context, messageID, userID int64, emoji string) (models.MessageView, error) {
	msg, emoji, err := s.reactionTarget(ctx, messageID, userID, emoji)
	if err != nil {
		return models.MessageView{}, err
	}
	r := models.Reaction{
		MessageID: msg.ID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.timestamp(),
	}
	if err := s.store.AddReaction(ctx, &r); err != nil {
		return models.MessageView{}, fmt.Errorf("add reaction: %w", err)
	}
	return s.rehydrate(ctx, msg)
}

func (s *Service) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (models.MessageView, error) {
	msg, emoji, err := s.reactionTarget(ctx, messageID, userID, emoji)
	if err != nil {
		return models.MessageView{}, err
	}
	if err := s.store.RemoveReaction(ctx, msg.ID, userID, emoji); err != nil {
		return models.MessageView{}, fmt.Errorf("remove reaction: %w", err)
	}
	return s.rehydrate(ctx, msg)
}

// reactionTarget normalises emoji, loads the message and checks that userID
// belongs to the message's room.
func (s *Service) reactionTarget(ctx context.Context, messageID, userID int64, emoji string) (models.Message, string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return models.Message{}, "", apperr.ErrEmptyEmoji
	}
	if utf8.RuneCountInString(emoji) > MaxEmojiLen {
		return models.Message{}, "", fmt.Errorf("emoji must be at most %d characters: %w", MaxEmojiLen, apperr.ErrValidation)
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, "", err
	}
	if _, err := s.ResolveEffectiveHistory(ctx, msg.RoomID, userID); err != nil {
		return models.Message{}, "", err
	}
	return msg, emoji, nil
}

func (s *Service) rehydrate(ctx context.Context, msg models.Message) (models.MessageView, error) {
	views, err := s.hydrate(ctx, []models.Message{msg})
	if err != nil {
		return models.MessageView{}, err
	}
	return views[0], nil
}
