package room

import (
	"time"

	"github.com/wfunc/roulette/network"
	"github.com/wfunc/roulette/state"
)

// roomContext 实现 state.RoomContext。
// States only run while the room's mutex is held, so nothing here locks.
type roomContext struct {
	room *Room
}

var _ state.RoomContext = roomContext{}

func (c roomContext) GetID() string {
	return c.room.ID
}

func (c roomContext) Now() time.Time {
	return c.room.clock.Now()
}

func (c roomContext) PlayerCount() int {
	return len(c.room.players)
}

func (c roomContext) Transition(phase state.Phase) error {
	return c.room.transitionLocked(phase)
}

func (c roomContext) Schedule(delay, interval time.Duration, callback func()) int64 {
	r := c.room
	var id int64
	id = r.scheduler.AddLaneTimer(r.ID, delay, interval, func() {
		r.mutex.Lock()
		defer r.mutex.Unlock()

		// 已取消的任务可能已被车道取出
		if _, live := r.timers[id]; !live {
			return
		}
		if interval <= 0 {
			delete(r.timers, id)
		}
		r.runScheduled(callback)
	})
	r.timers[id] = struct{}{}
	return id
}

func (c roomContext) Cancel(timerID int64) {
	c.room.scheduler.RemoveTimer(timerID)
	delete(c.room.timers, timerID)
}

func (c roomContext) OpenRound(window time.Duration) (int, time.Time) {
	return c.room.openRoundLocked(window)
}

func (c roomContext) ClearDeadline() {
	c.room.deadline = time.Time{}
}

func (c roomContext) Resolve() {
	c.room.resolveLocked()
}

func (c roomContext) BroadcastState() {
	c.room.broadcastStateLocked()
}

func (c roomContext) BroadcastTimer(now, deadline time.Time) {
	c.room.broadcastLocked(network.MsgTypeTimer, TimerUpdate{
		Now:      now.UnixMilli(),
		Deadline: deadline.UnixMilli(),
	})
}
