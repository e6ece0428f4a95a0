package state

import (
	"errors"
)

// Phase 房间所处的阶段
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseBetting  Phase = "betting"
	PhaseSpinning Phase = "spinning"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from, to Phase, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() Phase
	AcceptsBets() bool
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine 基础状态机实现。
// It is not safe for concurrent use: the owning room serializes every call,
// and states call back into the room from OnEnter/OnExit.
type BaseStateMachine struct {
	currentState State
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[Phase]map[Phase]func() bool),
	}
	initialState.OnEnter()
	return machine
}

// ChangeState exits the current state and enters newState. Once any
// transition has been registered for the current phase, only registered
// targets whose condition holds are allowed.
func (sm *BaseStateMachine) ChangeState(newState State) error {
	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	// 检查是否有转换条件
	if conditions, exists := sm.transitions[currentID]; exists {
		condition, allowed := conditions[newID]
		if !allowed {
			return ErrTransitionNotAllowed
		}
		if condition != nil && !condition() {
			return ErrTransitionNotAllowed
		}
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to Phase, condition func() bool) error {
	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}

	sm.transitions[from][to] = condition
	return nil
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   Phase
	Room RoomContext
}

func (s *RoomStateBase) GetID() Phase {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {
	// 默认实现
}

func (s *RoomStateBase) OnExit() {
	// 默认实现
}

func (s *RoomStateBase) AcceptsBets() bool {
	return false
}

// NewWaitingState creates a new waiting state.
func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{
		RoomStateBase: RoomStateBase{
			ID:   PhaseWaiting,
			Room: room,
		},
	}
}

// 等待状态：没有进行中的回合，也没有计时器
type WaitingState struct {
	RoomStateBase
}

func (s *WaitingState) OnEnter() {
	s.Room.ClearDeadline()
}
