package domain

import (
	"fmt"
	"time"
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaAudio, MediaVideo:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// MediaChunk is immutable once its bytes are flushed, except for the
// metadata fields filled in later by extraction.
type MediaChunk struct {
	ID          string    `json:"id"`
	SessionID   SessionID `json:"session_id"`
	SenderID    UserID    `json:"sender_id"`
	Seq         int64     `json:"seq"`
	TimestampMS int64     `json:"timestamp_ms"`
	Kind        MediaKind `json:"kind"`
	Codec       string    `json:"codec"`
	Size        int64     `json:"size"`
	DurationMS  *int64    `json:"duration_ms,omitempty"`
	SampleRate  *int      `json:"sample_rate,omitempty"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkMetadata is the set of fields extraction is allowed to update.
type ChunkMetadata struct {
	Size       int64
	DurationMS *int64
	SampleRate *int
}
