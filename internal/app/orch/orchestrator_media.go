package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/persist"
	"github.com/dkeye/vlink/internal/protocol"
)

// resolve picks the session a message belongs to: an explicit session id
// wins, otherwise the connection's joined room.
func (o *Orchestrator) resolve(cid core.ConnID, explicit domain.SessionID) (domain.UserID, domain.SessionID, error) {
	sender, ok := o.Registry.UserOf(cid)
	if !ok {
		return "", "", ErrNotBound
	}
	if explicit != "" {
		return sender, explicit, nil
	}
	if name, _, ok := o.Registry.RoomOf(cid); ok {
		return sender, name.Session(), nil
	}
	return "", "", ErrNoSession
}

// RelayChunk broadcasts the chunk to every other member of the room, then
// hands it to the persistence worker without waiting.
func (o *Orchestrator) RelayChunk(cid core.ConnID, c protocol.Chunk) (core.PublishResult, error) {
	sender, session, err := o.resolve(cid, c.SessionID)
	if err != nil {
		return core.PublishResult{}, err
	}

	frame, err := protocol.Encode(protocol.NewChunkBroadcast(c, session, sender, o.RelayFull))
	if err != nil {
		return core.PublishResult{}, err
	}
	res := o.broadcast(cid, domain.RoomFor(session), frame)

	if o.Persister != nil {
		err := o.Persister.ScheduleChunk(persist.ChunkWrite{
			SessionID:   session,
			SenderID:    sender,
			Seq:         c.Seq,
			TimestampMS: c.TimestampMS,
			Kind:        c.Kind,
			Codec:       c.Codec,
			Data:        c.Data,
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("session", string(session)).
				Int64("seq", c.Seq).Str("kind", string(c.Kind)).Msg("chunk not persisted")
		}
	}
	return res, nil
}

func (o *Orchestrator) RelayEvent(cid core.ConnID, e protocol.Event) (core.PublishResult, error) {
	sender, session, err := o.resolve(cid, e.SessionID)
	if err != nil {
		return core.PublishResult{}, err
	}

	frame, err := protocol.Encode(protocol.NewEventBroadcast(e, session, sender))
	if err != nil {
		return core.PublishResult{}, err
	}
	res := o.broadcast(cid, domain.RoomFor(session), frame)

	if o.Persister != nil {
		err := o.Persister.ScheduleEvent(persist.EventWrite{
			SessionID: session,
			SenderID:  sender,
			EventType: e.EventType,
			Payload:   e.Payload,
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("session", string(session)).
				Str("event", e.EventType).Msg("event not persisted")
		}
	}
	return res, nil
}
