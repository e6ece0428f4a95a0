// state/interfaces.go
package state

import "time"

// RoomContext defines what a phase state needs from the room that owns it.
// Every method is invoked while the room already serializes access, so
// implementations must not re-acquire the room's lock.
// This breaks the import cycle between room and state.
type RoomContext interface {
	GetID() string
	Now() time.Time
	PlayerCount() int

	// Transition 切换到指定阶段
	Transition(phase Phase) error

	// Schedule registers a callback with the room's scheduler. The callback
	// runs under the room's serialization; a positive interval repeats it.
	Schedule(delay, interval time.Duration, callback func()) int64
	Cancel(timerID int64)

	// OpenRound advances the round counter, clears the bet ledger and sets
	// the betting deadline.
	OpenRound(window time.Duration) (round int, deadline time.Time)
	ClearDeadline()
	Resolve()

	BroadcastState()
	BroadcastTimer(now, deadline time.Time)
}
