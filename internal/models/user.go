package models

import "time"

const DefaultDisplayColor = "#3b82f6"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayColor string    `json:"displayColor"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicUser is the profile projection sent to clients; it never carries
// credentials.
type PublicUser struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayColor string    `json:"displayColor"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSummary is the short form embedded in rooms, messages and rosters.
type UserSummary struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	DisplayColor string `json:"displayColor"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		DisplayColor: u.DisplayColor,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, DisplayColor: u.DisplayColor}
}
