// Package sqlstore implements store.Store on database/sql, backed by SQLite
// for single-node deployments or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/store"
)

//go:embed migrations
var migrationsFS embed.FS

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case SQLite, Postgres:
		return Dialect(s), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Store = (*SQLStore)(nil)

// Open connects to the database, configures the pool for the dialect and
// applies pending migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch d {
	case SQLite:
		// single writer; concurrent writers get SQLITE_BUSY otherwise
		db.SetMaxOpenConns(1)
	case Postgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, d)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// New wraps an already opened handle without touching the schema.
func New(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func (s *SQLStore) Migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	switch s.dialect {
	case SQLite:
		dbDriver, err = sqlite.WithInstance(s.db, &sqlite.Config{})
	case Postgres:
		dbDriver, err = postgres.WithInstance(s.db, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(s.dialect), dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) q() *querier {
	return &querier{db: s.db, dialect: s.dialect}
}

func (s *SQLStore) SetSessionStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) (bool, error) {
	return s.q().setSessionStatus(ctx, id, status, time.Now().UTC())
}

func (s *SQLStore) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.q().getSession(ctx, id)
}

func (s *SQLStore) CreateChunk(ctx context.Context, c *domain.MediaChunk) error {
	return s.q().createChunk(ctx, c)
}

func (s *SQLStore) GetChunk(ctx context.Context, id string) (*domain.MediaChunk, error) {
	return s.q().getChunk(ctx, id)
}

func (s *SQLStore) ListChunks(ctx context.Context, filter store.ChunkFilter) ([]*domain.MediaChunk, error) {
	return s.q().listChunks(ctx, filter)
}

func (s *SQLStore) UpdateChunkMetadata(ctx context.Context, id string, meta domain.ChunkMetadata) error {
	return s.q().updateChunkMetadata(ctx, id, meta)
}

func (s *SQLStore) AppendEvent(ctx context.Context, e *domain.EventEntry) error {
	return s.q().appendEvent(ctx, e)
}

func (s *SQLStore) ListEvents(ctx context.Context, session domain.SessionID, limit int) ([]*domain.EventEntry, error) {
	return s.q().listEvents(ctx, session, limit)
}

func (s *SQLStore) CreateRecording(ctx context.Context, r *domain.RecordingArtifact) error {
	return s.q().createRecording(ctx, r)
}

func (s *SQLStore) GetRecording(ctx context.Context, id string) (*domain.RecordingArtifact, error) {
	return s.q().getRecording(ctx, id)
}

func (s *SQLStore) ListRecordings(ctx context.Context, session domain.SessionID) ([]*domain.RecordingArtifact, error) {
	return s.q().listRecordings(ctx, session)
}

func (s *SQLStore) UpdateRecordingDuration(ctx context.Context, id string, durationMS int64) error {
	return s.q().updateRecordingDuration(ctx, id, durationMS)
}
