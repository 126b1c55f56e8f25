package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/vlink/internal/app"
	"github.com/dkeye/vlink/internal/core"
	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/persist"
	"github.com/dkeye/vlink/internal/protocol"
)

type recSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (s *recSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errors.New("backpressure")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recSignal) Close() {}

func (s *recSignal) types() []protocol.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Type
	for _, f := range s.frames {
		var env struct {
			Type protocol.Type `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

func (s *recSignal) count(t protocol.Type) int {
	n := 0
	for _, got := range s.types() {
		if got == t {
			n++
		}
	}
	return n
}

// orderPersister records, at scheduling time, how many peers had already
// received the broadcast.
type orderPersister struct {
	peers      []*recSignal
	seenChunks []int
	seenEvents []int
	chunks     []persist.ChunkWrite
	events     []persist.EventWrite
	err        error
}

func (p *orderPersister) delivered(t protocol.Type) int {
	n := 0
	for _, s := range p.peers {
		if s.count(t) > 0 {
			n++
		}
	}
	return n
}

func (p *orderPersister) ScheduleChunk(cw persist.ChunkWrite) error {
	p.seenChunks = append(p.seenChunks, p.delivered(protocol.TypeAudioChunk)+p.delivered(protocol.TypeVideoChunk))
	p.chunks = append(p.chunks, cw)
	return p.err
}

func (p *orderPersister) ScheduleEvent(ew persist.EventWrite) error {
	p.seenEvents = append(p.seenEvents, p.delivered(protocol.TypeEvent))
	p.events = append(p.events, ew)
	return p.err
}

type harness struct {
	o       *Orchestrator
	signals map[core.ConnID]*recSignal
	pers    *orderPersister
}

func newHarness(t *testing.T, conns ...string) *harness {
	t.Helper()
	h := &harness{
		signals: map[core.ConnID]*recSignal{},
		pers:    &orderPersister{},
	}
	h.o = &Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     app.NewRoomManager(),
		Policy:    app.SimplePolicy{},
		Persister: h.pers,
	}
	for _, c := range conns {
		sig := &recSignal{}
		h.signals[core.ConnID(c)] = sig
		user := &domain.User{ID: domain.UserID("user-" + c)}
		h.o.Registry.BindSignal(core.ConnID(c), core.NewMemberSession(domain.NewMember(user), sig), nil)
	}
	return h
}

func (h *harness) joinAll(t *testing.T, session domain.SessionID, conns ...string) {
	t.Helper()
	for _, c := range conns {
		if _, err := h.o.Join(core.ConnID(c), session); err != nil {
			t.Fatalf("Join(%s): %v", c, err)
		}
	}
}

func chunk(seq int64) protocol.Chunk {
	return protocol.Chunk{Seq: seq, TimestampMS: 1000, Codec: "opus", Kind: domain.MediaAudio, Data: []byte{1, 2}}
}

func TestRelayChunk_ReachesAllPeersBeforePersistence(t *testing.T) {
	h := newHarness(t, "a", "b", "c", "d")
	h.joinAll(t, "s1", "a", "b", "c", "d")
	for _, c := range []string{"b", "c", "d"} {
		h.pers.peers = append(h.pers.peers, h.signals[core.ConnID(c)])
	}

	res, err := h.o.RelayChunk("a", chunk(1))
	if err != nil {
		t.Fatalf("RelayChunk: %v", err)
	}
	if res.SendTo != 3 {
		t.Errorf("SendTo = %d, want 3", res.SendTo)
	}
	if got := h.signals["a"].count(protocol.TypeAudioChunk); got != 0 {
		t.Errorf("sender received its own chunk %d times", got)
	}
	for _, c := range []string{"b", "c", "d"} {
		if got := h.signals[core.ConnID(c)].count(protocol.TypeAudioChunk); got != 1 {
			t.Errorf("peer %s received %d chunks", c, got)
		}
	}

	if len(h.pers.chunks) != 1 {
		t.Fatalf("scheduled %d chunks", len(h.pers.chunks))
	}
	if h.pers.seenChunks[0] != 3 {
		t.Errorf("persistence scheduled after %d/3 deliveries", h.pers.seenChunks[0])
	}
	cw := h.pers.chunks[0]
	if cw.SessionID != "s1" || cw.SenderID != "user-a" || cw.Seq != 1 || cw.Kind != domain.MediaAudio {
		t.Errorf("chunk write = %+v", cw)
	}
}

func TestRelayChunk_BroadcastIsMetadataOnly(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.joinAll(t, "s1", "a", "b")

	if _, err := h.o.RelayChunk("a", chunk(5)); err != nil {
		t.Fatal(err)
	}
	sig := h.signals["b"]
	var got protocol.ChunkBroadcast
	if err := json.Unmarshal(sig.frames[len(sig.frames)-1], &got); err != nil {
		t.Fatal(err)
	}
	if got.Seq != 5 || got.SenderID != "user-a" || got.SessionID != "s1" || got.Codec != "opus" {
		t.Errorf("broadcast = %+v", got)
	}
	if got.Base64 != "" {
		t.Error("metadata mode must not carry bytes")
	}

	h.o.RelayFull = true
	if _, err := h.o.RelayChunk("a", chunk(6)); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(sig.frames[len(sig.frames)-1], &got); err != nil {
		t.Fatal(err)
	}
	if got.Base64 != "AQI=" {
		t.Errorf("full mode base64 = %q", got.Base64)
	}
}

func TestRelayChunk_ExplicitSessionWins(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	h.joinAll(t, "s1", "a", "b")
	h.joinAll(t, "s2", "c")

	c := chunk(1)
	c.SessionID = "s2"
	if _, err := h.o.RelayChunk("a", c); err != nil {
		t.Fatal(err)
	}
	if h.signals["b"].count(protocol.TypeAudioChunk) != 0 {
		t.Error("joined room should not receive an explicitly addressed chunk")
	}
	if h.signals["c"].count(protocol.TypeAudioChunk) != 1 {
		t.Error("explicit session room did not receive the chunk")
	}
	if h.pers.chunks[0].SessionID != "s2" {
		t.Errorf("persisted under %s", h.pers.chunks[0].SessionID)
	}
}

func TestRelayChunk_NoSessionDropped(t *testing.T) {
	h := newHarness(t, "a")
	if _, err := h.o.RelayChunk("a", chunk(1)); !errors.Is(err, ErrNoSession) {
		t.Errorf("got %v, want ErrNoSession", err)
	}
	if len(h.pers.chunks) != 0 {
		t.Error("nothing should be scheduled")
	}
	if _, err := h.o.RelayChunk("ghost", chunk(1)); !errors.Is(err, ErrNotBound) {
		t.Errorf("got %v, want ErrNotBound", err)
	}
}

func TestRelayChunk_PersistenceFailureDoesNotAffectRelay(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.joinAll(t, "s1", "a", "b")
	h.pers.err = errors.New("pool full")

	res, err := h.o.RelayChunk("a", chunk(1))
	if err != nil {
		t.Fatalf("RelayChunk: %v", err)
	}
	if res.SendTo != 1 {
		t.Errorf("SendTo = %d", res.SendTo)
	}
}

func TestRelayEvent(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	h.joinAll(t, "s1", "a", "b", "c")
	h.pers.peers = []*recSignal{h.signals["b"], h.signals["c"]}

	e := protocol.Event{EventType: "slide_change", Payload: json.RawMessage(`{"slide":3}`)}
	if _, err := h.o.RelayEvent("a", e); err != nil {
		t.Fatalf("RelayEvent: %v", err)
	}
	if h.pers.seenEvents[0] != 2 {
		t.Errorf("event persisted after %d/2 deliveries", h.pers.seenEvents[0])
	}

	var got protocol.EventBroadcast
	frames := h.signals["b"].frames
	if err := json.Unmarshal(frames[len(frames)-1], &got); err != nil {
		t.Fatal(err)
	}
	if got.EventType != "slide_change" || got.SenderID != "user-a" || string(got.Payload) != `{"slide":3}` {
		t.Errorf("event broadcast = %+v", got)
	}
}

func TestJoin_LastJoinWins(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	h.joinAll(t, "s1", "a", "b")
	h.joinAll(t, "s2", "c")

	room, err := h.o.Join("a", "s2")
	if err != nil || room != "s2" {
		t.Fatalf("Join = %s %v", room, err)
	}
	if h.signals["b"].count(protocol.TypeMemberLeft) != 1 {
		t.Error("old room not told about the move")
	}
	if h.signals["c"].count(protocol.TypeMemberJoined) != 1 {
		t.Error("new room not told about the join")
	}

	s1, _ := h.o.Rooms.GetRoom("s1")
	if s1.MemberCount() != 1 {
		t.Errorf("s1 members = %d", s1.MemberCount())
	}

	// joining the same room again changes nothing
	before := len(h.signals["c"].frames)
	if _, err := h.o.Join("a", "s2"); err != nil {
		t.Fatal(err)
	}
	if len(h.signals["c"].frames) != before {
		t.Error("rejoin should not notify")
	}
}

func TestLeaveAndDisconnect(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.joinAll(t, "s1", "a", "b")

	if name, ok := h.o.Leave("a"); !ok || name != "s1" {
		t.Fatalf("Leave = %s %v", name, ok)
	}
	if _, ok := h.o.Leave("a"); ok {
		t.Error("second Leave should report no room")
	}
	if _, ok := h.o.Registry.GetSession("a"); !ok {
		t.Error("leave must keep the connection bound")
	}

	h.o.OnDisconnect("b")
	if _, ok := h.o.Registry.GetSession("b"); ok {
		t.Error("disconnect must unbind")
	}
	if _, ok := h.o.Rooms.GetRoom("s1"); ok {
		t.Error("empty room should be dropped")
	}
}

func TestBackpressure_DropFrameKeepsPeer(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	h.joinAll(t, "s1", "a", "b", "c")
	h.signals["b"].full = true

	res, err := h.o.RelayChunk("a", chunk(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.SendTo != 1 || len(res.Dropped) != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, _, ok := h.o.Registry.RoomOf("b"); !ok {
		t.Error("slow peer should stay in the room under SimplePolicy")
	}
}

func TestBackpressure_StrictPolicyKicks(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	h.o.Policy = app.StrictPolicy{}
	h.joinAll(t, "s1", "a", "b", "c")
	h.signals["b"].full = true

	if _, err := h.o.RelayChunk("a", chunk(1)); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := h.o.Registry.RoomOf("b"); ok {
		t.Error("slow peer should be kicked under StrictPolicy")
	}
}
