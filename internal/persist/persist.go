// Package persist writes relayed chunks and events to durable storage off
// the relay path. Nothing here reports back to the sender.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/chunkstore"
	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/events"
	"github.com/dkeye/vlink/internal/idgen"
	"github.com/dkeye/vlink/internal/probe"
	"github.com/dkeye/vlink/internal/worker"
)

type Submitter interface {
	Submit(name string, fn worker.TaskFunc) error
}

type Enqueuer interface {
	Enqueue(path string, ref probe.Ref) error
}

// Recorder is the slice of the metadata store persistence writes to.
type Recorder interface {
	CreateChunk(ctx context.Context, c *domain.MediaChunk) error
	AppendEvent(ctx context.Context, e *domain.EventEntry) error
}

// ChunkWrite is one relayed fragment handed over for storage. Data is owned
// by the worker from the moment it is scheduled.
type ChunkWrite struct {
	SessionID   domain.SessionID
	SenderID    domain.UserID
	Seq         int64
	TimestampMS int64
	Kind        domain.MediaKind
	Codec       string
	Data        []byte
}

type EventWrite struct {
	SessionID domain.SessionID
	SenderID  domain.UserID
	EventType string
	Payload   json.RawMessage
}

type Worker struct {
	pool  Submitter
	files *chunkstore.Store
	rec   Recorder
	probe Enqueuer
	pub   events.Publisher
	now   func() time.Time
}

func NewWorker(pool Submitter, files *chunkstore.Store, rec Recorder, pq Enqueuer, pub events.Publisher) *Worker {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Worker{
		pool:  pool,
		files: files,
		rec:   rec,
		probe: pq,
		pub:   pub,
		now:   time.Now,
	}
}

// ScheduleChunk queues the write and returns immediately.
func (w *Worker) ScheduleChunk(cw ChunkWrite) error {
	return w.pool.Submit("persist-chunk", func(ctx context.Context) error {
		_, err := w.PersistChunk(ctx, cw)
		return err
	})
}

func (w *Worker) ScheduleEvent(ew EventWrite) error {
	return w.pool.Submit("persist-event", func(ctx context.Context) error {
		_, err := w.PersistEvent(ctx, ew)
		return err
	})
}

// PersistChunk writes the bytes, then the record, then hands the file to
// metadata extraction.
func (w *Worker) PersistChunk(ctx context.Context, cw ChunkWrite) (*domain.MediaChunk, error) {
	written, err := w.files.Write(cw.SessionID, cw.Kind, cw.Seq, cw.Data)
	if err != nil {
		return nil, fmt.Errorf("write chunk file: %w", err)
	}

	id, err := idgen.GenerateWithPrefix(idgen.ChunkPrefix)
	if err != nil {
		return nil, err
	}
	c := &domain.MediaChunk{
		ID:          id,
		SessionID:   cw.SessionID,
		SenderID:    cw.SenderID,
		Seq:         cw.Seq,
		TimestampMS: cw.TimestampMS,
		Kind:        cw.Kind,
		Codec:       cw.Codec,
		Size:        written.Size,
		Path:        written.Path,
		CreatedAt:   w.now().UTC(),
	}
	if err := w.rec.CreateChunk(ctx, c); err != nil {
		// the file stays on disk without a record
		return nil, fmt.Errorf("record chunk %s: %w", written.Path, err)
	}

	l := log.With().Str("module", "persist").Str("session", string(c.SessionID)).
		Str("chunk", c.ID).Int64("seq", c.Seq).Logger()
	l.Debug().Int64("size", c.Size).Str("path", c.Path).Msg("chunk stored")

	if w.probe != nil {
		if err := w.probe.Enqueue(c.Path, probe.Ref{Kind: probe.RefChunk, ID: c.ID}); err != nil && !errors.Is(err, probe.ErrQueueFull) {
			l.Warn().Err(err).Msg("probe enqueue failed")
		}
	}
	if err := w.pub.Publish(ctx, events.TopicChunkStored, events.ChunkStored{Chunk: c}); err != nil {
		l.Warn().Err(err).Msg("publish chunk stored failed")
	}
	return c, nil
}

func (w *Worker) PersistEvent(ctx context.Context, ew EventWrite) (*domain.EventEntry, error) {
	id, err := idgen.GenerateWithPrefix(idgen.EventPrefix)
	if err != nil {
		return nil, err
	}
	payload := ew.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	e := &domain.EventEntry{
		ID:        id,
		SessionID: ew.SessionID,
		SenderID:  ew.SenderID,
		EventType: ew.EventType,
		Payload:   payload,
		CreatedAt: w.now().UTC(),
	}
	if err := w.rec.AppendEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	log.Debug().Str("module", "persist").Str("session", string(e.SessionID)).
		Str("event", e.EventType).Msg("event stored")

	if err := w.pub.Publish(ctx, events.TopicEventStored, events.EventStored{Event: e}); err != nil {
		log.Warn().Err(err).Str("module", "persist").Msg("publish event stored failed")
	}
	return e, nil
}
