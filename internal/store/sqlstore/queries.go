package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/store"
)

const chunkColumns = `id, session_id, sender_id, seq, timestamp_ms, kind, codec,
	size, duration_ms, sample_rate, path, created_at`

const eventColumns = `id, session_id, sender_id, event_type, payload, created_at`

const recordingColumns = `id, session_id, filename, path, size, media_type,
	offline_ready, duration_ms, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier writes every statement with ? placeholders and rebinds them for
// the dialect on the way out.
type querier struct {
	db      executor
	dialect Dialect
}

func (q *querier) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, rebind(q.dialect, query), args...)
}

func (q *querier) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, rebind(q.dialect, query), args...)
}

func (q *querier) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, rebind(q.dialect, query), args...)
}

// rebind converts ? placeholders to $1..$n for postgres.
func rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// setSessionStatus reports a change only to the caller whose statement
// actually moved the row, so concurrent callers never both see true.
func (q *querier) setSessionStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus, now time.Time) (bool, error) {
	res, err := q.exec(ctx, `INSERT INTO sessions (id, status, updated_at) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		string(id), string(status), formatTime(now))
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	} else if n == 1 {
		return true, nil
	}

	res, err = q.exec(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		string(status), formatTime(now), string(id), string(status))
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	return n == 1, nil
}

func (q *querier) getSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	row := q.queryRow(ctx, `SELECT id, status, updated_at FROM sessions WHERE id = ?`, string(id))
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return s, err
}

func (q *querier) createChunk(ctx context.Context, c *domain.MediaChunk) error {
	_, err := q.exec(ctx, `
		INSERT INTO media_chunks (
			id, session_id, sender_id, seq, timestamp_ms, kind, codec,
			size, duration_ms, sample_rate, path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		string(c.SessionID),
		string(c.SenderID),
		c.Seq,
		c.TimestampMS,
		string(c.Kind),
		c.Codec,
		c.Size,
		nullInt64(c.DurationMS),
		nullInt(c.SampleRate),
		c.Path,
		formatTime(c.CreatedAt),
	)
	return err
}

func (q *querier) getChunk(ctx context.Context, id string) (*domain.MediaChunk, error) {
	row := q.queryRow(ctx, `SELECT `+chunkColumns+` FROM media_chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, store.ErrNotFound)
	}
	return c, err
}

func (q *querier) listChunks(ctx context.Context, f store.ChunkFilter) ([]*domain.MediaChunk, error) {
	var (
		where = []string{"session_id = ?"}
		args  = []any{string(f.SessionID)}
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	order := "seq ASC, ord ASC"
	if f.Order == store.SeqDesc {
		order = "seq DESC, ord DESC"
	}

	query := `SELECT ` + chunkColumns + ` FROM media_chunks WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY ` + order
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []*domain.MediaChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *querier) updateChunkMetadata(ctx context.Context, id string, m domain.ChunkMetadata) error {
	res, err := q.exec(ctx,
		`UPDATE media_chunks SET size = ?, duration_ms = ?, sample_rate = ? WHERE id = ?`,
		m.Size, nullInt64(m.DurationMS), nullInt(m.SampleRate), id)
	if err != nil {
		return fmt.Errorf("update chunk metadata: %w", err)
	}
	return expectOneRow(res, "chunk", id)
}

func (q *querier) appendEvent(ctx context.Context, e *domain.EventEntry) error {
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}
	_, err := q.exec(ctx, `
		INSERT INTO event_log (id, session_id, sender_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID,
		string(e.SessionID),
		string(e.SenderID),
		e.EventType,
		payload,
		formatTime(e.CreatedAt),
	)
	return err
}

func (q *querier) listEvents(ctx context.Context, session domain.SessionID, limit int) ([]*domain.EventEntry, error) {
	query := `SELECT ` + eventColumns + ` FROM event_log WHERE session_id = ? ORDER BY ord DESC`
	args := []any{string(session)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*domain.EventEntry
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *querier) createRecording(ctx context.Context, r *domain.RecordingArtifact) error {
	_, err := q.exec(ctx, `
		INSERT INTO recordings (
			id, session_id, filename, path, size, media_type,
			offline_ready, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		string(r.SessionID),
		r.Filename,
		r.Path,
		r.Size,
		r.MediaType,
		r.OfflineReady,
		nullInt64(r.DurationMS),
		formatTime(r.CreatedAt),
	)
	return err
}

func (q *querier) getRecording(ctx context.Context, id string) (*domain.RecordingArtifact, error) {
	row := q.queryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", id, store.ErrNotFound)
	}
	return r, err
}

func (q *querier) listRecordings(ctx context.Context, session domain.SessionID) ([]*domain.RecordingArtifact, error) {
	rows, err := q.query(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE session_id = ? ORDER BY ord ASC`,
		string(session))
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []*domain.RecordingArtifact
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *querier) updateRecordingDuration(ctx context.Context, id string, durationMS int64) error {
	res, err := q.exec(ctx, `UPDATE recordings SET duration_ms = ? WHERE id = ?`, durationMS, id)
	if err != nil {
		return fmt.Errorf("update recording duration: %w", err)
	}
	return expectOneRow(res, "recording", id)
}

func expectOneRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, store.ErrNotFound)
	}
	return nil
}
