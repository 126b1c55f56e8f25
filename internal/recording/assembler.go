// Package recording assembles a finished session's stored chunks into a
// single playable file and registers it as a recording artifact.
package recording

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/events"
	"github.com/dkeye/vlink/internal/idgen"
	"github.com/dkeye/vlink/internal/media"
	"github.com/dkeye/vlink/internal/probe"
	"github.com/dkeye/vlink/internal/store"
)

var (
	ErrNothingToAssemble = errors.New("no chunks to assemble")
	ErrEncoderFailed     = errors.New("encoder failed")
	ErrInProgress        = errors.New("assembly already running for session")
)

// Source is the slice of the metadata store the assembler reads and writes.
type Source interface {
	ListChunks(ctx context.Context, filter store.ChunkFilter) ([]*domain.MediaChunk, error)
	CreateRecording(ctx context.Context, r *domain.RecordingArtifact) error
}

type Enqueuer interface {
	Enqueue(path string, ref probe.Ref) error
}

type Archiver interface {
	Archive(ctx context.Context, r *domain.RecordingArtifact) error
}

type Config struct {
	Dir     string // output directory; manifests go to Dir/temp
	Encoder string // encoder binary, default ffmpeg
}

type Assembler struct {
	src      Source
	fs       afero.Fs
	runner   media.Runner
	cfg      Config
	probe    Enqueuer
	pub      events.Publisher
	archiver Archiver
	now      func() time.Time

	mu       sync.Mutex
	inflight map[domain.SessionID]struct{}
}

type Option func(*Assembler)

func WithProbe(q Enqueuer) Option            { return func(a *Assembler) { a.probe = q } }
func WithPublisher(p events.Publisher) Option { return func(a *Assembler) { a.pub = p } }
func WithArchiver(ar Archiver) Option         { return func(a *Assembler) { a.archiver = ar } }
func WithClock(now func() time.Time) Option   { return func(a *Assembler) { a.now = now } }

func NewAssembler(src Source, fs afero.Fs, runner media.Runner, cfg Config, opts ...Option) *Assembler {
	if cfg.Encoder == "" {
		cfg.Encoder = "ffmpeg"
	}
	a := &Assembler{
		src:      src,
		fs:       fs,
		runner:   runner,
		cfg:      cfg,
		pub:      &events.NoopPublisher{},
		now:      time.Now,
		inflight: make(map[domain.SessionID]struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble concatenates the session's video and audio chunks in sequence
// order into one MP4. A failed encode leaves no artifact and no manifests.
func (a *Assembler) Assemble(ctx context.Context, session domain.SessionID) (*domain.RecordingArtifact, error) {
	if err := domain.ValidateSessionID(string(session)); err != nil {
		return nil, err
	}
	if !a.acquire(session) {
		return nil, ErrInProgress
	}
	defer a.release(session)

	l := log.With().Str("module", "recording").Str("session", string(session)).Logger()

	chunks, err := a.src.ListChunks(ctx, store.ChunkFilter{SessionID: session, Order: store.SeqAsc})
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	var video, audio []string
	for _, c := range chunks {
		if c.Path == "" {
			continue
		}
		if ok, _ := afero.Exists(a.fs, c.Path); !ok {
			l.Warn().Str("chunk", c.ID).Str("path", c.Path).Msg("chunk file missing, skipped")
			continue
		}
		switch c.Kind {
		case domain.MediaVideo:
			video = append(video, c.Path)
		case domain.MediaAudio:
			audio = append(audio, c.Path)
		}
	}
	if len(video) == 0 && len(audio) == 0 {
		l.Info().Msg("nothing to assemble")
		return nil, ErrNothingToAssemble
	}

	tempDir := filepath.Join(a.cfg.Dir, "temp")
	if err := a.fs.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", tempDir, err)
	}
	vidList := filepath.Join(tempDir, string(session)+"_vid.txt")
	audList := filepath.Join(tempDir, string(session)+"_aud.txt")
	defer a.remove(vidList, audList)

	args := []string{"-y"}
	if len(video) > 0 {
		if err := a.writeManifest(vidList, video); err != nil {
			return nil, err
		}
		args = append(args, "-f", "concat", "-safe", "0", "-i", vidList)
	}
	if len(audio) > 0 {
		if err := a.writeManifest(audList, audio); err != nil {
			return nil, err
		}
		args = append(args, "-f", "concat", "-safe", "0", "-i", audList)
	}

	filename, output := a.outputPath(session)
	switch {
	case len(video) > 0 && len(audio) > 0:
		args = append(args, "-map", "0:v", "-map", "1:a", "-c:v", "copy", "-c:a", "aac", "-shortest", output)
	case len(video) > 0:
		args = append(args, "-c:v", "copy", output)
	default:
		args = append(args, "-c:a", "aac", output)
	}

	l.Info().Int("video", len(video)).Int("audio", len(audio)).Str("output", output).Msg("encoding")
	if _, err := a.runner.Run(ctx, a.cfg.Encoder, args...); err != nil {
		a.remove(output)
		l.Error().Err(err).Msg("encode failed")
		return nil, fmt.Errorf("%w: %v", ErrEncoderFailed, err)
	}

	fi, err := a.fs.Stat(output)
	if err != nil {
		l.Error().Err(err).Msg("encoder reported success but produced no output")
		return nil, fmt.Errorf("%w: %v", ErrEncoderFailed, err)
	}

	id, err := idgen.GenerateWithPrefix(idgen.RecordingPrefix)
	if err != nil {
		a.remove(output)
		return nil, err
	}
	rec := &domain.RecordingArtifact{
		ID:           id,
		SessionID:    session,
		Filename:     filename,
		Path:         output,
		Size:         fi.Size(),
		MediaType:    domain.RecordingMediaType,
		OfflineReady: true,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.src.CreateRecording(ctx, rec); err != nil {
		a.remove(output)
		return nil, fmt.Errorf("register recording: %w", err)
	}
	l.Info().Str("recording", rec.ID).Int64("size", rec.Size).Msg("recording created")

	a.afterCreate(ctx, l, rec)
	return rec, nil
}

func (a *Assembler) afterCreate(ctx context.Context, l zerolog.Logger, rec *domain.RecordingArtifact) {
	if a.probe != nil {
		if err := a.probe.Enqueue(rec.Path, probe.Ref{Kind: probe.RefRecording, ID: rec.ID}); err != nil {
			l.Warn().Err(err).Msg("probe enqueue failed")
		}
	}
	if err := a.pub.Publish(ctx, events.TopicRecordingCreated, events.RecordingCreated{Recording: rec}); err != nil {
		l.Warn().Err(err).Msg("publish recording created failed")
	}
	if a.archiver != nil {
		if err := a.archiver.Archive(ctx, rec); err != nil {
			l.Error().Err(err).Msg("archive failed")
		}
	}
}

// writeManifest writes a concat demuxer list, one absolute path per line.
func (a *Assembler) writeManifest(path string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f, err)
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := afero.WriteFile(a.fs, path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

func (a *Assembler) outputPath(session domain.SessionID) (string, string) {
	for ts := a.now().Unix(); ; ts++ {
		name := fmt.Sprintf("recording_%s_%d.mp4", session, ts)
		path := filepath.Join(a.cfg.Dir, name)
		if ok, _ := afero.Exists(a.fs, path); !ok {
			return name, path
		}
	}
}

func (a *Assembler) remove(paths ...string) {
	for _, p := range paths {
		_ = a.fs.Remove(p)
	}
}

func (a *Assembler) acquire(session domain.SessionID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inflight[session]; busy {
		return false
	}
	a.inflight[session] = struct{}{}
	return true
}

func (a *Assembler) release(session domain.SessionID) {
	a.mu.Lock()
	delete(a.inflight, session)
	a.mu.Unlock()
}
