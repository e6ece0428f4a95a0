package room

import "time"

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// Scheduler runs room timers. timer.TimerManager is the production implementation.
// Rooms pass their id as the lane so one stalled room cannot hold up another.
type Scheduler interface {
	AddLaneTimer(lane string, delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

// Recorder receives game metrics. monitor.Monitor implements it.
type Recorder interface {
	BetPlaced(amount int64)
	RoundResolved()
	SetActiveRooms(count int)
}

type nopRecorder struct{}

func (nopRecorder) BetPlaced(int64)    {}
func (nopRecorder) RoundResolved()     {}
func (nopRecorder) SetActiveRooms(int) {}
