package http

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/dkeye/vlink/internal/adapters/signal"
	"github.com/dkeye/vlink/internal/app/orch"
	"github.com/dkeye/vlink/internal/auth"
	"github.com/dkeye/vlink/internal/config"
	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/store"
	"github.com/dkeye/vlink/internal/worker"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Lifecycle interface {
	Start(ctx context.Context, id domain.SessionID) (bool, error)
	End(ctx context.Context, id domain.SessionID) (bool, error)
}

// Reader is the read side of the metadata store.
type Reader interface {
	GetChunk(ctx context.Context, id string) (*domain.MediaChunk, error)
	ListChunks(ctx context.Context, filter store.ChunkFilter) ([]*domain.MediaChunk, error)
	ListEvents(ctx context.Context, session domain.SessionID, limit int) ([]*domain.EventEntry, error)
	ListRecordings(ctx context.Context, session domain.SessionID) ([]*domain.RecordingArtifact, error)
	Ping(ctx context.Context) error
}

// Gauge reports a live counter for the health endpoint.
type Gauge func() int

type Deps struct {
	Orch      *orch.Orchestrator
	Auth      auth.Authenticator
	Lifecycle Lifecycle
	Store     Reader
	Files     afero.Fs
	// Stats are optional and reported by /healthz under "stats".
	Stats map[string]Gauge
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := signal.NewSignalWSController(deps.Orch, deps.Auth, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait(),
		SendBuffer: cfg.SendBuffer,
	})
	h := &handlers{deps: deps}

	log.Info().Str("module", "adapters.http").Str("relay", cfg.RelayMode).Msg("router setup")

	r.GET("/healthz", h.health)

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	sessions := api.Group("/sessions/:id")
	sessions.Use(sessionParam)
	sessions.POST("/start", requireBearer(deps.Auth), h.startSession)
	sessions.POST("/end", requireBearer(deps.Auth), h.endSession)
	sessions.GET("/chunks", h.listChunks)
	sessions.GET("/events", h.listEvents)
	sessions.GET("/recordings", h.listRecordings)

	api.GET("/chunks/:id/file", h.chunkFile)
	api.GET("/rooms", h.listRooms)

	return r
}

type handlers struct {
	deps Deps
}

func sessionParam(c *gin.Context) {
	id := c.Param("id")
	if err := domain.ValidateSessionID(id); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Set("session", domain.SessionID(id))
	c.Next()
}

// requireBearer rejects requests without a valid token before any state changes.
func requireBearer(authn auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.TokenFromRequest(c.Request)
		if err == nil {
			var user domain.UserID
			if user, err = authn.Authenticate(token); err == nil {
				c.Set("user", user)
				c.Next()
				return
			}
		}
		log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("rejected request")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func session(c *gin.Context) domain.SessionID {
	return c.MustGet("session").(domain.SessionID)
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(n, maxListLimit), true
}

func internalError(c *gin.Context, err error, msg string) {
	log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg(msg)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (h *handlers) health(c *gin.Context) {
	if err := h.deps.Store.Ping(c.Request.Context()); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	body := gin.H{"status": "ok"}
	if len(h.deps.Stats) > 0 {
		stats := make(map[string]int, len(h.deps.Stats))
		for name, g := range h.deps.Stats {
			stats[name] = g()
		}
		body["stats"] = stats
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.deps.Orch.Rooms.List()})
}

func (h *handlers) startSession(c *gin.Context) {
	id := session(c)
	changed, err := h.deps.Lifecycle.Start(c.Request.Context(), id)
	if errors.Is(err, domain.ErrInvalidSessionID) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err, "start session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": domain.SessionLive, "changed": changed})
}

// endSession answers as soon as the status is stored; assembly runs later.
func (h *handlers) endSession(c *gin.Context) {
	id := session(c)
	changed, err := h.deps.Lifecycle.End(c.Request.Context(), id)
	if errors.Is(err, worker.ErrPoolFull) || errors.Is(err, worker.ErrPoolClosed) {
		// session is back to live; the caller may retry
		log.Warn().Err(err).Str("module", "adapters.http").Str("session", string(id)).Msg("end deferred")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "assembly queue unavailable, retry later"})
		return
	}
	if err != nil {
		internalError(c, err, "end session")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": id, "status": domain.SessionCompleted, "changed": changed})
}

func (h *handlers) listChunks(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	filter := store.ChunkFilter{SessionID: session(c), Order: store.SeqDesc, Limit: limit}
	if raw := c.Query("kind"); raw != "" {
		kind, err := domain.ParseMediaKind(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Kind = kind
	}
	chunks, err := h.deps.Store.ListChunks(c.Request.Context(), filter)
	if err != nil {
		internalError(c, err, "list chunks")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

func (h *handlers) listEvents(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	evs, err := h.deps.Store.ListEvents(c.Request.Context(), session(c), limit)
	if err != nil {
		internalError(c, err, "list events")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (h *handlers) listRecordings(c *gin.Context) {
	recs, err := h.deps.Store.ListRecordings(c.Request.Context(), session(c))
	if err != nil {
		internalError(c, err, "list recordings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}

func (h *handlers) chunkFile(c *gin.Context) {
	chunk, err := h.deps.Store.GetChunk(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "chunk not found"})
		return
	}
	if err != nil {
		internalError(c, err, "get chunk")
		return
	}
	data, err := afero.ReadFile(h.deps.Files, chunk.Path)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("path", chunk.Path).Msg("chunk file unreadable")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "chunk file missing"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(chunk.Path)+`"`)
	c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
}
