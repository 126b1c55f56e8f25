package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/protocol"
)

// Join binds the connection to the session's room. A connection already in
// another room is moved: the last join wins.
func (o *Orchestrator) Join(cid core.ConnID, session domain.SessionID) (domain.RoomName, error) {
	sess, ok := o.Registry.GetSession(cid)
	if !ok {
		return "", ErrNotBound
	}
	target := domain.RoomFor(session)

	if current, _, ok := o.Registry.RoomOf(cid); ok {
		if current == target {
			return target, nil
		}
		o.leaveRoom(cid, current, sess)
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("from_room", string(current)).Msg("moved out of room")
	}

	o.Rooms.Enter(target, cid, sess)
	o.Registry.UpdateRoom(cid, target)
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("room", string(target)).Msg("added to room")

	o.notify(cid, target, protocol.TypeMemberJoined, sess)
	return target, nil
}

// Leave takes the connection out of its room; the connection stays open.
func (o *Orchestrator) Leave(cid core.ConnID) (domain.RoomName, bool) {
	name, sess, ok := o.Registry.RoomOf(cid)
	if !ok {
		return "", false
	}
	o.leaveRoom(cid, name, sess)
	return name, true
}

func (o *Orchestrator) OnDisconnect(cid core.ConnID) {
	if name, sess, ok := o.Registry.RoomOf(cid); ok {
		o.leaveRoom(cid, name, sess)
	}
	o.Registry.Unbind(cid)
}

// KickByConn removes a member from its room and closes its connection.
func (o *Orchestrator) KickByConn(cid core.ConnID) {
	if name, sess, ok := o.Registry.RoomOf(cid); ok {
		o.leaveRoom(cid, name, sess)
	}
	o.Registry.Cancel(cid)
}

func (o *Orchestrator) leaveRoom(cid core.ConnID, name domain.RoomName, sess core.MemberSession) {
	o.Registry.RemoveRoom(cid)
	if o.Rooms.Exit(name, cid) {
		log.Debug().Str("module", "orch").Str("room", string(name)).Msg("room emptied")
		return
	}
	o.notify(cid, name, protocol.TypeMemberLeft, sess)
}

func (o *Orchestrator) notify(cid core.ConnID, name domain.RoomName, t protocol.Type, sess core.MemberSession) {
	frame, err := protocol.Encode(protocol.MemberNotice{Type: t, Room: name, User: sess.Meta().User.ID})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode member notice")
		return
	}
	o.broadcast(cid, name, frame)
}

func (o *Orchestrator) EvictRoom(name domain.RoomName) {
	for _, snap := range o.Registry.MembersOfRoom(name) {
		o.KickByConn(snap.Conn)
	}
	o.Rooms.StopRoom(name)
}
