package state

import (
	"time"

	"github.com/wfunc/roulette/logger"
)

// SpinningState 转盘阶段：下注冻结，延迟后开奖
type SpinningState struct {
	RoomStateBase
	Delay   time.Duration
	timerID int64
	active  bool
}

func NewSpinningState(room RoomContext, delay time.Duration) *SpinningState {
	return &SpinningState{
		RoomStateBase: RoomStateBase{
			ID:   PhaseSpinning,
			Room: room,
		},
		Delay: delay,
	}
}

func (s *SpinningState) OnEnter() {
	s.active = true
	s.Room.BroadcastState()
	s.timerID = s.Room.Schedule(s.Delay, 0, s.finish)
}

func (s *SpinningState) OnExit() {
	s.active = false
	s.Room.Cancel(s.timerID)
}

func (s *SpinningState) finish() {
	if !s.active {
		return
	}

	s.Room.Resolve()

	next := PhaseWaiting
	if s.Room.PlayerCount() > 0 {
		next = PhaseBetting
	}
	if err := s.Room.Transition(next); err != nil {
		logger.Log.Errorf("Room %s failed to leave spinning: %v", s.Room.GetID(), err)
	}
}
