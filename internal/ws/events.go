package ws

import (
	"encoding/json"
	"fmt"

	"roomchat/internal/models"
)

// Outbound events.
const (
	EventConnectionInit = "connection:init"
	EventRoomsUpdate    = "rooms:update"
	EventMessageNew     = "message:new"
	EventMessageUpdated = "message:updated"
	EventError          = "error"
)

// Inbound events.
const (
	EventRoomsSync      = "rooms:sync"
	EventMessageSend    = "message:send"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventReactionAdd    = "reaction:add"
	EventReactionRemove = "reaction:remove"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func encode(eventType string, payload any) ([]byte, error) {
	b, err := json.Marshal(outbound{Type: eventType, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return b, nil
}

type InitPayload struct {
	User  models.PublicUser `json:"user"`
	Rooms []models.RoomView `json:"rooms"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type RoomPayload struct {
	RoomID int64 `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  int64  `json:"roomId"`
	Content string `json:"content"`
}

// ReactionPayload carries the client's roomId, but fan-out always uses the
// message's own room.
type ReactionPayload struct {
	MessageID int64  `json:"messageId"`
	RoomID    int64  `json:"roomId"`
	Emoji     string `json:"emoji"`
}
