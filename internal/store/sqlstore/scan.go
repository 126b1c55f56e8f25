package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/vlink/internal/domain"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*domain.Session, error) {
	var (
		s         domain.Session
		updatedAt string
	)
	if err := row.Scan(&s.ID, &s.Status, &updatedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = t
	return &s, nil
}

// scanChunk scans a row in chunkColumns order.
func scanChunk(row scannable) (*domain.MediaChunk, error) {
	var (
		c          domain.MediaChunk
		duration   sql.NullInt64
		sampleRate sql.NullInt64
		createdAt  string
	)
	err := row.Scan(
		&c.ID,
		&c.SessionID,
		&c.SenderID,
		&c.Seq,
		&c.TimestampMS,
		&c.Kind,
		&c.Codec,
		&c.Size,
		&duration,
		&sampleRate,
		&c.Path,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		c.DurationMS = &duration.Int64
	}
	if sampleRate.Valid {
		sr := int(sampleRate.Int64)
		c.SampleRate = &sr
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanEvent(row scannable) (*domain.EventEntry, error) {
	var (
		e         domain.EventEntry
		payload   []byte
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.SessionID, &e.SenderID, &e.EventType, &payload, &createdAt); err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = t
	return &e, nil
}

func scanRecording(row scannable) (*domain.RecordingArtifact, error) {
	var (
		r         domain.RecordingArtifact
		duration  sql.NullInt64
		createdAt string
	)
	err := row.Scan(
		&r.ID,
		&r.SessionID,
		&r.Filename,
		&r.Path,
		&r.Size,
		&r.MediaType,
		&r.OfflineReady,
		&duration,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		r.DurationMS = &duration.Int64
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Timestamps are stored as RFC3339 text so both dialects share one schema shape.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
