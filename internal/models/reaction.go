package models

import "time"

// Reaction is unique per (MessageID, UserID, Emoji).
type Reaction struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"messageId"`
	UserID    int64     `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReactionView struct {
	ID    int64       `json:"id"`
	Emoji string      `json:"emoji"`
	User  UserSummary `json:"user"`
}
