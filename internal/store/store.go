package store

import (
	"context"
	"errors"

	"github.com/dkeye/vlink/internal/domain"
)

var ErrNotFound = errors.New("not found")

type ChunkOrder int

const (
	// SeqAsc orders by sequence, ties broken by insertion order.
	SeqAsc ChunkOrder = iota
	SeqDesc
)

type ChunkFilter struct {
	SessionID domain.SessionID
	Kind      domain.MediaKind // empty = all kinds
	Order     ChunkOrder
	Limit     int // 0 = unlimited
}

// Store defines the persistence interface for session media metadata.
type Store interface {
	// Sessions. SetSessionStatus reports whether the stored status changed.
	SetSessionStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) (bool, error)
	GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error)

	// Chunks
	CreateChunk(ctx context.Context, c *domain.MediaChunk) error
	GetChunk(ctx context.Context, id string) (*domain.MediaChunk, error)
	ListChunks(ctx context.Context, filter ChunkFilter) ([]*domain.MediaChunk, error)
	UpdateChunkMetadata(ctx context.Context, id string, meta domain.ChunkMetadata) error

	// Event log
	AppendEvent(ctx context.Context, e *domain.EventEntry) error
	// ListEvents returns the newest entries first.
	ListEvents(ctx context.Context, session domain.SessionID, limit int) ([]*domain.EventEntry, error)

	// Recordings
	CreateRecording(ctx context.Context, r *domain.RecordingArtifact) error
	GetRecording(ctx context.Context, id string) (*domain.RecordingArtifact, error)
	ListRecordings(ctx context.Context, session domain.SessionID) ([]*domain.RecordingArtifact, error)
	UpdateRecordingDuration(ctx context.Context, id string, durationMS int64) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
