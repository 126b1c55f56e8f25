package domain

// RoomName is the fan-out scope of a session; it is always the session identifier.
type RoomName string

type Room struct {
	Name RoomName
}

func RoomFor(id SessionID) RoomName { return RoomName(id) }

func (n RoomName) Session() SessionID { return SessionID(n) }
