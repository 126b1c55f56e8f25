package probe

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/store"
)

var ErrQueueFull = errors.New("probe queue is full")

type RefKind string

const (
	RefChunk     RefKind = "chunk"
	RefRecording RefKind = "recording"
)

// Ref names the record a probed file belongs to.
type Ref struct {
	Kind RefKind
	ID   string
}

// Target is the slice of the store the queue writes to.
type Target interface {
	UpdateChunkMetadata(ctx context.Context, id string, meta domain.ChunkMetadata) error
	UpdateRecordingDuration(ctx context.Context, id string, durationMS int64) error
}

type item struct {
	path string
	ref  Ref
}

// Queue is a bounded FIFO with exactly one consumer. Failures are logged
// and dropped; nothing is retried.
type Queue struct {
	items  chan item
	prober *Prober
	target Target
	fs     afero.Fs
}

func NewQueue(prober *Prober, target Target, fs afero.Fs, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		items:  make(chan item, size),
		prober: prober,
		target: target,
		fs:     fs,
	}
}

// Enqueue never blocks.
func (q *Queue) Enqueue(path string, ref Ref) error {
	select {
	case q.items <- item{path: path, ref: ref}:
		return nil
	default:
		log.Warn().Str("module", "probe").Str("path", path).Msg("queue full, dropping")
		return ErrQueueFull
	}
}

func (q *Queue) Len() int { return len(q.items) }

// Run consumes items until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	log.Info().Str("module", "probe").Int("capacity", cap(q.items)).Msg("consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "probe").Int("pending", len(q.items)).Msg("consumer stopped")
			return nil
		case it := <-q.items:
			q.process(ctx, it)
		}
	}
}

func (q *Queue) process(ctx context.Context, it item) {
	l := log.With().Str("module", "probe").Str("path", it.path).
		Str("ref", string(it.ref.Kind)).Str("id", it.ref.ID).Logger()

	info, err := q.prober.Probe(ctx, it.path)
	if err != nil {
		l.Debug().Err(err).Msg("probe skipped")
		return
	}

	switch it.ref.Kind {
	case RefChunk:
		fi, err := q.fs.Stat(it.path)
		if err != nil {
			// removed while probing; leave the record as it was
			l.Debug().Err(err).Msg("file gone after probe")
			return
		}
		err = q.target.UpdateChunkMetadata(ctx, it.ref.ID, domain.ChunkMetadata{
			Size:       fi.Size(),
			DurationMS: info.DurationMS,
			SampleRate: info.SampleRate,
		})
		q.report(l, err)

	case RefRecording:
		if info.DurationMS == nil {
			return
		}
		q.report(l, q.target.UpdateRecordingDuration(ctx, it.ref.ID, *info.DurationMS))

	default:
		l.Debug().Msg("unrelated file, nothing to update")
	}
}

func (q *Queue) report(l zerolog.Logger, err error) {
	switch {
	case err == nil:
		l.Debug().Msg("metadata updated")
	case errors.Is(err, store.ErrNotFound):
		l.Debug().Msg("record no longer exists")
	default:
		l.Error().Err(err).Msg("metadata update failed")
	}
}
