package core

// Frame is an encoded outbound message.
type Frame []byte

// SignalConnection abstracts the control/relay transport of one connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
