package protocol

import (
	"encoding/base64"
	"encoding/json"

	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/domain"
)

// Encode marshals an outbound message into a frame.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

// NewChunkBroadcast builds the peer-facing view of a chunk. withBytes
// re-emits the payload for the simple-relay mode.
func NewChunkBroadcast(c Chunk, session domain.SessionID, sender domain.UserID, withBytes bool) ChunkBroadcast {
	out := ChunkBroadcast{
		Type:        c.Type(),
		SessionID:   session,
		Seq:         c.Seq,
		SenderID:    sender,
		Codec:       c.Codec,
		TimestampMS: c.TimestampMS,
	}
	if withBytes {
		out.Base64 = base64.StdEncoding.EncodeToString(c.Data)
	}
	return out
}

func NewEventBroadcast(e Event, session domain.SessionID, sender domain.UserID) EventBroadcast {
	return EventBroadcast{
		Type:      TypeEvent,
		SenderID:  sender,
		SessionID: session,
		EventType: e.EventType,
		Payload:   e.Payload,
	}
}
