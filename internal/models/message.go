package models

import "time"

type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Before reports whether m sorts before o in (createdAt, id) order.
func (m Message) Before(o Message) bool {
	if m.CreatedAt.Equal(o.CreatedAt) {
		return m.ID < o.ID
	}
	return m.CreatedAt.Before(o.CreatedAt)
}

type MessageView struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	RoomID    int64          `json:"roomId"`
	Sender    UserSummary    `json:"sender"`
	Reactions []ReactionView `json:"reactions"`
}
