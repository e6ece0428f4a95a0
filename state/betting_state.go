package state

import (
	"time"

	"github.com/wfunc/roulette/logger"
)

// BettingState 下注阶段：倒计时进行中，接受下注
type BettingState struct {
	RoomStateBase
	Window       time.Duration
	TickInterval time.Duration
	Round        int
	Deadline     time.Time
	tickID       int64
	active       bool
}

// NewBettingState 创建新的下注状态
func NewBettingState(room RoomContext, window, tickInterval time.Duration) *BettingState {
	return &BettingState{
		RoomStateBase: RoomStateBase{
			ID:   PhaseBetting,
			Room: room,
		},
		Window:       window,
		TickInterval: tickInterval,
	}
}

// OnEnter opens a new round and starts the countdown tick.
func (s *BettingState) OnEnter() {
	s.active = true
	s.Round, s.Deadline = s.Room.OpenRound(s.Window)
	s.tickID = s.Room.Schedule(s.TickInterval, s.TickInterval, s.tick)

	logger.Log.Infof("房间 %s 第 %d 轮开始下注，截止时间 %s", s.Room.GetID(), s.Round, s.Deadline.Format(time.RFC3339Nano))
	s.Room.BroadcastState()
}

// OnExit stops the tick so no stale callback survives the phase.
func (s *BettingState) OnExit() {
	s.active = false
	s.Room.Cancel(s.tickID)
}

func (s *BettingState) AcceptsBets() bool {
	return true
}

func (s *BettingState) tick() {
	if !s.active {
		return
	}

	now := s.Room.Now()
	s.Room.BroadcastTimer(now, s.Deadline)

	if !now.Before(s.Deadline) {
		if err := s.Room.Transition(PhaseSpinning); err != nil {
			logger.Log.Errorf("Room %s failed to enter spinning: %v", s.Room.GetID(), err)
		}
	}
}
