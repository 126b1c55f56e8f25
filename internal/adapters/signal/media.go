package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vlink/internal/app/orch"
	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/protocol"
)

// Media and event failures are never reported to the sender.

func (ctl *SignalWSController) handleChunk(cid core.ConnID, m protocol.Chunk) {
	res, err := ctl.Orch.RelayChunk(cid, m)
	if err != nil {
		logDrop(cid, err, "chunk")
		return
	}
	log.Trace().Str("module", "signal").Str("conn", string(cid)).Int64("seq", m.Seq).
		Str("kind", string(m.Kind)).Int("sent_to", res.SendTo).Msg("chunk relayed")
}

func (ctl *SignalWSController) handleEvent(cid core.ConnID, m protocol.Event) {
	if _, err := ctl.Orch.RelayEvent(cid, m); err != nil {
		logDrop(cid, err, "event")
	}
}

func logDrop(cid core.ConnID, err error, what string) {
	ev := log.Debug()
	if !errors.Is(err, orch.ErrNoSession) {
		ev = log.Warn()
	}
	ev.Err(err).Str("module", "signal").Str("conn", string(cid)).Msgf("%s dropped", what)
}
