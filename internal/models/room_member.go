package models

import "time"

// Membership is the (room, user) record that gates every room-scoped
// operation. Without history access a member only sees messages created at
// or after JoinedAt.
type Membership struct {
	RoomID           int64     `json:"roomId"`
	UserID           int64     `json:"userId"`
	CanAccessHistory bool      `json:"canAccessHistory"`
	JoinedAt         time.Time `json:"joinedAt"`
}

type MembershipView struct {
	CanAccessHistory bool      `json:"canAccessHistory"`
	JoinedAt         time.Time `json:"joinedAt"`
}

// Member is a user together with their membership in one room.
type Member struct {
	UserSummary
	RoomID           int64     `json:"-"`
	CanAccessHistory bool      `json:"canAccessHistory"`
	JoinedAt         time.Time `json:"joinedAt"`
}

func (m Membership) View() *MembershipView {
	return &MembershipView{CanAccessHistory: m.CanAccessHistory, JoinedAt: m.JoinedAt}
}
