package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/protocol"
)

func (ctl *SignalWSController) sendError(conn *WsSignalConn, msg string) {
	ctl.sendJSON(conn, protocol.Error{Type: protocol.TypeError, Error: msg})
}

func (ctl *SignalWSController) handleJoin(cid core.ConnID, conn *WsSignalConn, m protocol.Join) {
	uid, ok := ctl.Orch.Registry.UserOf(cid)
	if !ok {
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(uid) {
		log.Warn().Str("module", "signal").Str("conn", string(cid)).Str("sender", string(uid)).Msg("join rate limited")
		ctl.sendError(conn, "too many joins")
		return
	}

	room, err := ctl.Orch.Join(cid, m.SessionID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("join failed")
		ctl.sendError(conn, "join failed")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("session", string(m.SessionID)).Msg("join")
	ctl.sendJSON(conn, protocol.Joined{Type: protocol.TypeJoined, Room: room})
}

// handleLeave exits the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(cid core.ConnID, conn *WsSignalConn) {
	if name, ok := ctl.Orch.Leave(cid); ok {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Str("room", string(name)).Msg("leave")
	}
	ctl.sendJSON(conn, protocol.Left{Type: protocol.TypeLeft})
}
