package models

import "time"

// GuestUsername is the identity chat messages are attributed to when the
// sender is not logged in.
const GuestUsername = "Guest"

// ChatMessage represents one message in the community chat. Append-only.
type ChatMessage struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"` // sender username or "Guest", denormalized
	Text      string    `json:"text" db:"text"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

func (m *ChatMessage) RecordID() string      { return m.ID }
func (m *ChatMessage) SetRecordID(id string) { m.ID = id }

// ChatSendRequest represents the request payload for sending a chat message
type ChatSendRequest struct {
	Text string `json:"text" validate:"required"`
}
