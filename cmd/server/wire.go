package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/chunkstore"
	"github.com/dkeye/vlink/internal/config"
	"github.com/dkeye/vlink/internal/events"
	"github.com/dkeye/vlink/internal/media"
	"github.com/dkeye/vlink/internal/probe"
	"github.com/dkeye/vlink/internal/recording"
	"github.com/dkeye/vlink/internal/store/sqlstore"
)

// components are the pieces shared by serve and the one-shot commands.
type components struct {
	store     *sqlstore.SQLStore
	files     *chunkstore.Store
	publisher events.Publisher
	prober    *probe.Prober
	queue     *probe.Queue
	assembler *recording.Assembler
}

func build(ctx context.Context, cfg *config.Config) (*components, error) {
	st, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	files, err := chunkstore.NewOS(cfg.Storage.Root)
	if err != nil {
		st.Close()
		return nil, err
	}
	recDir, err := filepath.Abs(cfg.Storage.RecordingsDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("resolve recordings dir: %w", err)
	}

	c := &components{store: st, files: files}

	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			st.Close()
			return nil, err
		}
		c.publisher = pub
		log.Info().Str("module", "main").Str("nats_url", cfg.NATS.URL).Msg("events enabled")
	} else {
		c.publisher = &events.NoopPublisher{}
		log.Info().Str("module", "main").Msg("events disabled (nats.url not set)")
	}

	for _, bin := range []string{cfg.Probe.Binary, cfg.Encoder.Binary} {
		if err := media.Available(bin); err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("media tool missing")
		}
	}

	fs := files.Fs()
	runner := media.ExecRunner{}
	c.prober = probe.NewProber(runner, cfg.Probe.Binary, fs)
	c.queue = probe.NewQueue(c.prober, st, fs, cfg.Probe.QueueSize)

	opts := []recording.Option{
		recording.WithProbe(c.queue),
		recording.WithPublisher(c.publisher),
	}
	if cfg.S3.Bucket != "" {
		ar, err := recording.NewS3Archiver(ctx, fs, recording.S3Config{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		})
		if err != nil {
			log.Error().Err(err).Str("module", "main").Msg("S3 archiver disabled")
		} else {
			opts = append(opts, recording.WithArchiver(ar))
			log.Info().Str("module", "main").Str("bucket", cfg.S3.Bucket).Msg("S3 archiver enabled")
		}
	}
	c.assembler = recording.NewAssembler(st, fs, runner, recording.Config{
		Dir:     recDir,
		Encoder: cfg.Encoder.Binary,
	}, opts...)

	return c, nil
}

func (c *components) Close() {
	if err := c.publisher.Close(); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("error closing publisher")
	}
	if err := c.store.Close(); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("error closing store")
	}
}
