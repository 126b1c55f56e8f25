package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cid core.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		cancel()
		ctl.Orch.OnDisconnect(cid)
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleFrame(cid, c, mt, data)
	}
}

func (ctl *SignalWSController) handleFrame(cid core.ConnID, c *WsSignalConn, mt int, data []byte) {
	var (
		msg protocol.Message
		err error
	)
	switch mt {
	case websocket.TextMessage:
		msg, err = protocol.DecodeText(data)
	case websocket.BinaryMessage:
		msg, err = protocol.DecodeBinary(data)
	default:
		return
	}
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("unknown signal")
		} else {
			log.Debug().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("dropped malformed message")
		}
		return
	}

	switch m := msg.(type) {
	case protocol.Join:
		ctl.handleJoin(cid, c, m)
	case protocol.Leave:
		ctl.handleLeave(cid, c)
	case protocol.Ping:
		ctl.handlePing(c)
	case protocol.WhoAmI:
		ctl.handleWhoAmI(cid, c)
	case protocol.Chunk:
		ctl.handleChunk(cid, m)
	case protocol.Event:
		ctl.handleEvent(cid, m)
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}
