package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/vlink/internal/adapters/http"
	"github.com/dkeye/vlink/internal/app"
	"github.com/dkeye/vlink/internal/app/orch"
	"github.com/dkeye/vlink/internal/auth"
	"github.com/dkeye/vlink/internal/config"
	"github.com/dkeye/vlink/internal/events"
	"github.com/dkeye/vlink/internal/lifecycle"
	"github.com/dkeye/vlink/internal/persist"
	"github.com/dkeye/vlink/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway, persistence workers and recording pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	authn, err := auth.NewJWTAuthenticator(cfg.Auth.Secret, cfg.Auth.Algorithm)
	if err != nil {
		return err
	}

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	policy, err := app.PolicyFor(cfg.Backpressure)
	if err != nil {
		return err
	}

	pool := worker.New(cfg.Workers.PoolSize, cfg.Workers.PoolQueue)
	assemblyPool := worker.New(cfg.Workers.AssemblySize, cfg.Workers.AssemblyQueue)
	pw := persist.NewWorker(pool, c.files, c.store, c.queue, c.publisher)

	o := &orch.Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     app.NewRoomManager(),
		Policy:    policy,
		Persister: pw,
		RelayFull: cfg.RelayMode == config.RelayFull,
	}
	lc := lifecycle.NewService(c.store, assemblyPool, c.assembler, c.publisher, lifecycle.WithEvictor(o))

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:      o,
		Auth:      authn,
		Lifecycle: lc,
		Store:     c.store,
		Files:     c.files.Fs(),
		Stats: map[string]router.Gauge{
			"connections":      o.Registry.Count,
			"persist_pending":  pool.Pending,
			"assembly_pending": assemblyPool.Pending,
			"probe_pending":    c.queue.Len,
		},
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", addr).Msg("vlink server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return c.queue.Run(gctx)
	})

	if cfg.NATS.URL != "" {
		sub, err := events.NewNATSSubscriber(cfg.NATS.URL)
		if err != nil {
			log.Error().Err(err).Str("module", "main").Msg("end-request subscriber disabled")
		} else {
			g.Go(func() error {
				defer sub.Close()
				return lc.Listen(gctx, sub)
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
		}
		// in-flight persistence and assembly finish before the store closes
		pool.Close()
		assemblyPool.Close()
		log.Info().Str("module", "main").Msg("worker pools drained")
		return nil
	})

	err = g.Wait()
	log.Info().Str("module", "main").Msg("server exited")
	return err
}
