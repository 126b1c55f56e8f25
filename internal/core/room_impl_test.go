package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/vlink/internal/domain"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("full")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func (f *fakeSignal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func member(id string, sig SignalConnection) MemberSession {
	return NewMemberSession(domain.NewMember(&domain.User{ID: domain.UserID(id)}), sig)
}

func TestBroadcastSkipsSender(t *testing.T) {
	room := NewRoomService(&domain.Room{Name: "s1"})
	sigs := map[ConnID]*fakeSignal{"a": {}, "b": {}, "c": {}}
	for id, s := range sigs {
		room.AddMember(id, member(string(id), s))
	}

	res := room.Broadcast("a", Frame("hello"))
	if res.SendTo != 2 {
		t.Fatalf("SendTo = %d, want 2", res.SendTo)
	}
	if sigs["a"].count() != 0 {
		t.Fatal("sender received its own broadcast")
	}
	if sigs["b"].count() != 1 || sigs["c"].count() != 1 {
		t.Fatalf("peers got b=%d c=%d frames, want 1 each", sigs["b"].count(), sigs["c"].count())
	}
}

func TestBroadcastReportsDropped(t *testing.T) {
	room := NewRoomService(&domain.Room{Name: "s1"})
	slow := &fakeSignal{full: true}
	room.AddMember("a", member("u1", &fakeSignal{}))
	room.AddMember("b", member("u2", slow))

	res := room.Broadcast("a", Frame("x"))
	if res.SendTo != 0 || len(res.Dropped) != 1 {
		t.Fatalf("got SendTo=%d dropped=%d, want 0/1", res.SendTo, len(res.Dropped))
	}
}

func TestBroadcastPreservesOrderPerPeer(t *testing.T) {
	room := NewRoomService(&domain.Room{Name: "s1"})
	peer := &fakeSignal{}
	room.AddMember("a", member("u1", &fakeSignal{}))
	room.AddMember("b", member("u2", peer))

	for _, f := range []string{"1", "2", "3"} {
		room.Broadcast("a", Frame(f))
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(peer.frames[i]) != want {
			t.Fatalf("frame %d = %q, want %q", i, peer.frames[i], want)
		}
	}
}

func TestRemoveMember(t *testing.T) {
	room := NewRoomService(&domain.Room{Name: "s1"})
	room.AddMember("a", member("u1", &fakeSignal{}))
	room.AddMember("b", member("u2", &fakeSignal{}))
	room.RemoveMember("a")
	room.RemoveMember("missing")

	if room.MemberCount() != 1 {
		t.Fatalf("MemberCount = %d, want 1", room.MemberCount())
	}
	snap := room.MembersSnapshot()
	if len(snap) != 1 || snap[0].Conn != "b" || snap[0].User != "u2" {
		t.Fatalf("snapshot = %+v", snap)
	}
}
