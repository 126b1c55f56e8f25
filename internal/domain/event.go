package domain

import (
	"encoding/json"
	"time"
)

// EventEntry is an append-only annotation record (strokes, slide changes, control signals).
type EventEntry struct {
	ID        string          `json:"id"`
	SessionID SessionID       `json:"session_id"`
	SenderID  UserID          `json:"sender_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
