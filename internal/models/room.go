package models

import "time"

const GeneralRoomName = "General"

type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsGeneral bool      `json:"isGeneral"`
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomView is a room as returned to one particular user.
type RoomView struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	IsGeneral  bool            `json:"isGeneral"`
	Membership *MembershipView `json:"membership,omitempty"`
	Members    []UserSummary   `json:"members"`
}
