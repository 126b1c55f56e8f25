package domain

import "time"

// RecordingMediaType is the container every assembled recording is written in.
const RecordingMediaType = "video/mp4"

type RecordingArtifact struct {
	ID           string    `json:"id"`
	SessionID    SessionID `json:"session_id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MediaType    string    `json:"media_type"`
	OfflineReady bool      `json:"offline_ready"`
	DurationMS   *int64    `json:"duration_ms,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
