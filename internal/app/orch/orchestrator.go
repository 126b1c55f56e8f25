// Package orch ties connections, rooms and persistence together for the
// gateway. Every relay broadcasts first and only then schedules storage.
package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/app"
	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/persist"
)

var (
	ErrNotBound  = errors.New("connection not registered")
	ErrNoSession = errors.New("no session for message")
)

type Persister interface {
	ScheduleChunk(cw persist.ChunkWrite) error
	ScheduleEvent(ew persist.EventWrite) error
}

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Policy    app.Policy
	Persister Persister
	// RelayFull re-emits chunk bytes to peers instead of metadata only.
	RelayFull bool
}

// broadcast fans frame out to the room and applies the backpressure policy
// to peers whose queues were full.
func (o *Orchestrator) broadcast(from core.ConnID, name domain.RoomName, frame core.Frame) core.PublishResult {
	room, ok := o.Rooms.GetRoom(name)
	if !ok {
		return core.PublishResult{}
	}

	res := room.Broadcast(from, frame)
	if o.Policy == nil || len(res.Dropped) == 0 {
		return res
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfRoom(name) {
				if snap.Session == slow {
					o.KickByConn(snap.Conn)
				}
			}
		case app.DropFrame:
			log.Debug().Str("module", "orch").Str("room", string(name)).
				Str("peer", string(slow.Meta().User.ID)).Msg("peer queue full, frame dropped")
		}
	}
	return res
}
