package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dkeye/vlink/internal/domain"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// MaxHeaderLen bounds the JSON header of a binary frame.
const MaxHeaderLen = 4096

var validate = validator.New(validator.WithRequiredStructEnabled())

type envelope struct {
	Type Type `json:"type"`
}

type joinWire struct {
	SessionID string `json:"session_id" validate:"required,max=64"`
}

type chunkWire struct {
	Type        Type            `json:"type"`
	SessionID   string          `json:"session_id" validate:"omitempty,max=64"`
	Seq         *int64          `json:"seq" validate:"required,gte=0"`
	TimestampMS int64           `json:"timestamp_ms"`
	Codec       string          `json:"codec" validate:"max=64"`
	Binary      json.RawMessage `json:"binary,omitempty"`
	Base64      string          `json:"base64,omitempty"`
}

type eventWire struct {
	SessionID string          `json:"session_id" validate:"omitempty,max=64"`
	EventType string          `json:"event_type" validate:"required,max=64"`
	Payload   json.RawMessage `json:"payload"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// DecodeText decodes a JSON text frame into one Message variant.
func DecodeText(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("bad json: %v", err)
	}
	switch env.Type {
	case TypeJoin:
		var w joinWire
		if err := decodeStrict(data, &w); err != nil {
			return nil, err
		}
		if err := domain.ValidateSessionID(w.SessionID); err != nil {
			return nil, malformed("session_id: %v", err)
		}
		return Join{SessionID: domain.SessionID(w.SessionID)}, nil
	case TypeLeave:
		return Leave{}, nil
	case TypePing:
		return Ping{}, nil
	case TypeWhoAmI:
		return WhoAmI{}, nil
	case TypeAudioChunk, TypeVideoChunk:
		var w chunkWire
		if err := decodeStrict(data, &w); err != nil {
			return nil, err
		}
		payload, err := chunkBytes(w)
		if err != nil {
			return nil, err
		}
		return buildChunk(env.Type, w, payload)
	case TypeEvent:
		var w eventWire
		if err := decodeStrict(data, &w); err != nil {
			return nil, err
		}
		if w.SessionID != "" {
			if err := domain.ValidateSessionID(w.SessionID); err != nil {
				return nil, malformed("session_id: %v", err)
			}
		}
		payload := w.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		return Event{
			SessionID: domain.SessionID(w.SessionID),
			EventType: w.EventType,
			Payload:   payload,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

// DecodeBinary decodes a binary chunk frame.
func DecodeBinary(data []byte) (Message, error) {
	if len(data) < 4 {
		return nil, malformed("short frame")
	}
	n := binary.BigEndian.Uint32(data[:4])
	if n == 0 || n > MaxHeaderLen || int(n) > len(data)-4 {
		return nil, malformed("bad header length %d", n)
	}
	header := data[4 : 4+n]
	var w chunkWire
	if err := decodeStrict(header, &w); err != nil {
		return nil, err
	}
	if w.Type != TypeAudioChunk && w.Type != TypeVideoChunk {
		return nil, malformed("binary frame type %q", w.Type)
	}
	payload := data[4+n:]
	if len(payload) == 0 {
		return nil, malformed("empty payload")
	}
	return buildChunk(w.Type, w, bytes.Clone(payload))
}

// EncodeBinaryChunk is the inverse of DecodeBinary; clients and tests use it.
func EncodeBinaryChunk(c Chunk) ([]byte, error) {
	seq := c.Seq
	header, err := json.Marshal(chunkWire{
		Type:        c.Type(),
		SessionID:   string(c.SessionID),
		Seq:         &seq,
		TimestampMS: c.TimestampMS,
		Codec:       c.Codec,
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+len(header)+len(c.Data))
	binary.BigEndian.PutUint32(out, uint32(len(header)))
	out = append(out, header...)
	return append(out, c.Data...), nil
}

func decodeStrict(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return malformed("bad json: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		return malformed("%v", err)
	}
	return nil
}

func buildChunk(t Type, w chunkWire, payload []byte) (Chunk, error) {
	if w.SessionID != "" {
		if err := domain.ValidateSessionID(w.SessionID); err != nil {
			return Chunk{}, malformed("session_id: %v", err)
		}
	}
	kind := domain.MediaAudio
	if t == TypeVideoChunk {
		kind = domain.MediaVideo
	}
	return Chunk{
		SessionID:   domain.SessionID(w.SessionID),
		Seq:         *w.Seq,
		TimestampMS: w.TimestampMS,
		Codec:       w.Codec,
		Kind:        kind,
		Data:        payload,
	}, nil
}

// chunkBytes resolves the payload of a text chunk. "binary" may be a JSON
// byte array or a base64 string; "base64" is always a string.
func chunkBytes(w chunkWire) ([]byte, error) {
	var out []byte
	switch {
	case len(w.Binary) > 0 && w.Binary[0] == '[':
		var ints []int
		if err := json.Unmarshal(w.Binary, &ints); err != nil {
			return nil, malformed("binary: %v", err)
		}
		out = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, malformed("binary: byte %d out of range", i)
			}
			out[i] = byte(v)
		}
	case len(w.Binary) > 0 && w.Binary[0] == '"':
		var s string
		if err := json.Unmarshal(w.Binary, &s); err != nil {
			return nil, malformed("binary: %v", err)
		}
		b, err := decodeBase64(s)
		if err != nil {
			return nil, err
		}
		out = b
	case w.Base64 != "":
		b, err := decodeBase64(w.Base64)
		if err != nil {
			return nil, err
		}
		out = b
	}
	if len(out) == 0 {
		return nil, malformed("missing payload")
	}
	return out, nil
}

// decodeBase64 accepts padded/unpadded std and url alphabets and strips a
// data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ";base64,"); ok {
			s = rest
		}
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, malformed("undecodable base64")
}
