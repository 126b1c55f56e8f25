// Package lifecycle moves sessions between live and completed and kicks
// off recording assembly when a session ends.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/events"
	"github.com/dkeye/vlink/internal/recording"
	"github.com/dkeye/vlink/internal/worker"
)

type StatusStore interface {
	SetSessionStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) (bool, error)
}

type Assembler interface {
	Assemble(ctx context.Context, session domain.SessionID) (*domain.RecordingArtifact, error)
}

type Submitter interface {
	Submit(name string, fn worker.TaskFunc) error
}

// Evictor closes whatever live state still hangs off a finished session.
type Evictor interface {
	EvictRoom(name domain.RoomName)
}

type Service struct {
	st    StatusStore
	pool  Submitter
	asm   Assembler
	pub   events.Publisher
	evict Evictor
}

type Option func(*Service)

// WithEvictor disconnects the session's room once it has been completed.
func WithEvictor(e Evictor) Option {
	return func(s *Service) { s.evict = e }
}

func NewService(st StatusStore, pool Submitter, asm Assembler, pub events.Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	s := &Service{st: st, pool: pool, asm: asm, pub: pub}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start marks the session live. Repeating it is harmless.
func (s *Service) Start(ctx context.Context, id domain.SessionID) (bool, error) {
	if err := domain.ValidateSessionID(string(id)); err != nil {
		return false, err
	}
	changed, err := s.st.SetSessionStatus(ctx, id, domain.SessionLive)
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	if changed {
		log.Info().Str("module", "lifecycle").Str("session", string(id)).Msg("session live")
		s.publish(ctx, events.TopicSessionLive, id, domain.SessionLive)
	}
	return changed, nil
}

// End marks the session completed and schedules assembly in the background.
// Only the call that actually completes the session schedules anything. If
// assembly cannot be queued the session goes back to live and the error is
// returned, so a retry of End gets another chance.
func (s *Service) End(ctx context.Context, id domain.SessionID) (bool, error) {
	if err := domain.ValidateSessionID(string(id)); err != nil {
		return false, err
	}
	changed, err := s.st.SetSessionStatus(ctx, id, domain.SessionCompleted)
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	if !changed {
		log.Debug().Str("module", "lifecycle").Str("session", string(id)).Msg("already completed")
		return false, nil
	}

	if err := s.ScheduleAssembly(id); err != nil {
		if _, rerr := s.st.SetSessionStatus(context.WithoutCancel(ctx), id, domain.SessionLive); rerr != nil {
			log.Error().Err(rerr).Str("module", "lifecycle").Str("session", string(id)).Msg("revert to live failed")
			return false, errors.Join(err, rerr)
		}
		log.Warn().Err(err).Str("module", "lifecycle").Str("session", string(id)).Msg("assembly not queued, session back to live")
		return false, err
	}

	log.Info().Str("module", "lifecycle").Str("session", string(id)).Msg("session completed")
	s.publish(ctx, events.TopicSessionCompleted, id, domain.SessionCompleted)
	if s.evict != nil {
		s.evict.EvictRoom(domain.RoomFor(id))
	}
	return true, nil
}

func (s *Service) ScheduleAssembly(id domain.SessionID) error {
	err := s.pool.Submit("assemble:"+string(id), func(ctx context.Context) error {
		_, err := s.asm.Assemble(ctx, id)
		if errors.Is(err, recording.ErrNothingToAssemble) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("schedule assembly for %s: %w", id, err)
	}
	return nil
}

// Listen ends sessions on request from the event bus until ctx is done.
func (s *Service) Listen(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicSessionEndRequest)
	if err != nil {
		return err
	}
	defer cancel()

	log.Info().Str("module", "lifecycle").Str("topic", events.TopicSessionEndRequest).Msg("listening for end requests")
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var req events.SessionEndRequest
			if err := json.Unmarshal(data, &req); err != nil {
				log.Warn().Err(err).Str("module", "lifecycle").Msg("bad end request")
				continue
			}
			if _, err := s.End(ctx, req.SessionID); err != nil {
				log.Error().Err(err).Str("module", "lifecycle").Str("session", string(req.SessionID)).Msg("end request failed")
			}
		}
	}
}

func (s *Service) publish(ctx context.Context, topic string, id domain.SessionID, st domain.SessionStatus) {
	if err := s.pub.Publish(ctx, topic, events.SessionStatusChanged{SessionID: id, Status: st}); err != nil {
		log.Warn().Err(err).Str("module", "lifecycle").Str("topic", topic).Msg("publish failed")
	}
}
