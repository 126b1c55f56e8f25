package events

import (
	"context"

	"github.com/dkeye/vlink/internal/domain"
)

const (
	TopicChunkStored      = "vlink.chunk.stored"
	TopicEventStored      = "vlink.event.stored"
	TopicRecordingCreated = "vlink.recording.created"
	TopicSessionLive      = "vlink.session.live"
	TopicSessionCompleted = "vlink.session.completed"

	// Inbound: another service asks for a session to be ended.
	TopicSessionEndRequest = "vlink.session.end.request"
)

type ChunkStored struct {
	Chunk *domain.MediaChunk `json:"chunk"`
}

type EventStored struct {
	Event *domain.EventEntry `json:"event"`
}

type RecordingCreated struct {
	Recording *domain.RecordingArtifact `json:"recording"`
}

type SessionStatusChanged struct {
	SessionID domain.SessionID     `json:"session_id"`
	Status    domain.SessionStatus `json:"status"`
}

type SessionEndRequest struct {
	SessionID domain.SessionID `json:"session_id"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
