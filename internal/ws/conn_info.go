package ws

import "time"

// ConnInfo describes one connected episode of a session.
type ConnInfo struct {
	ConnID      string
	Username    string
	RoomID      string
	Epoch       uint64
	Attempt     int
	ConnectedAt time.Time
}
