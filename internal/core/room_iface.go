package core

import (
	"github.com/dkeye/vlink/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	Conn ConnID        `json:"conn"`
	User domain.UserID `json:"user"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO

	AddMember(id ConnID, ms MemberSession)
	RemoveMember(id ConnID)
	// Broadcast fans data out to every member except from.
	Broadcast(from ConnID, data Frame) PublishResult
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

type RoomManager interface {
	GetRoom(name domain.RoomName) (RoomService, bool)
	// Enter and Exit change membership under the manager lock, so a room
	// that Exit just emptied and dropped is never handed to a joiner.
	Enter(name domain.RoomName, id ConnID, ms MemberSession) RoomService
	Exit(name domain.RoomName, id ConnID) (emptied bool)
	List() []RoomInfo
	StopRoom(name domain.RoomName)
}
