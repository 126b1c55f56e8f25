// Package protocol defines the gateway wire messages and their decoding.
//
// Inbound text frames are JSON objects tagged by "type". Inbound binary
// frames carry a chunk: a 4-byte big-endian header length, a JSON header
// with the chunk fields, then the raw media bytes.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/vlink/internal/domain"
)

type Type string

const (
	TypeJoin       Type = "join"
	TypeLeave      Type = "leave"
	TypePing       Type = "ping"
	TypeWhoAmI     Type = "whoami"
	TypeAudioChunk Type = "audio_chunk"
	TypeVideoChunk Type = "video_chunk"
	TypeEvent      Type = "event"

	TypeJoined       Type = "joined"
	TypeLeft         Type = "left"
	TypePong         Type = "pong"
	TypeError        Type = "error"
	TypeMemberJoined Type = "member_joined"
	TypeMemberLeft   Type = "member_left"
)

// Message is one decoded inbound variant.
type Message interface {
	Type() Type
}

type Join struct {
	SessionID domain.SessionID
}

type Leave struct{}

type Ping struct{}

type WhoAmI struct{}

// Chunk is a validated media fragment. SessionID may be empty, in which
// case the connection's joined room is used.
type Chunk struct {
	SessionID   domain.SessionID
	Seq         int64
	TimestampMS int64
	Codec       string
	Kind        domain.MediaKind
	Data        []byte
}

// Event is a validated annotation message.
type Event struct {
	SessionID domain.SessionID
	EventType string
	Payload   json.RawMessage
}

func (Join) Type() Type   { return TypeJoin }
func (Leave) Type() Type  { return TypeLeave }
func (Ping) Type() Type   { return TypePing }
func (WhoAmI) Type() Type { return TypeWhoAmI }
func (Event) Type() Type  { return TypeEvent }

func (c Chunk) Type() Type {
	if c.Kind == domain.MediaVideo {
		return TypeVideoChunk
	}
	return TypeAudioChunk
}

// Outbound messages.

type Joined struct {
	Type Type            `json:"type"`
	Room domain.RoomName `json:"room"`
}

type Left struct {
	Type Type `json:"type"`
}

type Pong struct {
	Type Type `json:"type"`
}

type Error struct {
	Type  Type   `json:"type"`
	Error string `json:"error"`
}

type MemberNotice struct {
	Type Type            `json:"type"`
	Room domain.RoomName `json:"room"`
	User domain.UserID   `json:"user"`
}

type WhoAmIReply struct {
	Type Type            `json:"type"`
	User domain.UserID   `json:"user"`
	Room domain.RoomName `json:"room,omitempty"`
}

// ChunkBroadcast is what peers receive for a relayed chunk. Base64 is only
// set in full relay mode.
type ChunkBroadcast struct {
	Type        Type             `json:"type"`
	SessionID   domain.SessionID `json:"session_id"`
	Seq         int64            `json:"seq"`
	SenderID    domain.UserID    `json:"sender_id"`
	Codec       string           `json:"codec"`
	TimestampMS int64            `json:"timestamp_ms"`
	Base64      string           `json:"base64,omitempty"`
}

type EventBroadcast struct {
	Type      Type             `json:"type"`
	SenderID  domain.UserID    `json:"sender_id"`
	SessionID domain.SessionID `json:"session_id"`
	EventType string           `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
}
