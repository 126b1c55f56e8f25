package signal

import (
	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/protocol"
)

func (ctl *SignalWSController) handleWhoAmI(cid core.ConnID, conn *WsSignalConn) {
	uid, _ := ctl.Orch.Registry.UserOf(cid)
	resp := protocol.WhoAmIReply{Type: protocol.TypeWhoAmI, User: uid}
	if name, _, ok := ctl.Orch.Registry.RoomOf(cid); ok {
		resp.Room = name
	}
	ctl.sendJSON(conn, resp)
}
