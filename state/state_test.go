package state

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/roulette/timer"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            Phase
	OnEnterCalled bool
	OnExitCalled  bool
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) GetID() Phase {
	return m.ID
}

func (m *MockState) AcceptsBets() bool {
	return false
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	sm := NewBaseStateMachine(initialState)

	if !initialState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the initial state")
	}

	if sm.GetCurrentState() != initialState {
		t.Error("GetCurrentState should return the initial state")
	}
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	nextState := &MockState{ID: "next"}

	sm := NewBaseStateMachine(initialState)
	initialState.reset() // Reset after initialization

	err := sm.ChangeState(nextState)
	if err != nil {
		t.Fatalf("ChangeState should not return an error, but got: %v", err)
	}

	if !initialState.OnExitCalled {
		t.Error("Expected OnExit to be called on the old state")
	}

	if !nextState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the new state")
	}

	if sm.GetCurrentState() != nextState {
		t.Error("GetCurrentState should return the new state")
	}
}

func TestStateMachine_AddAndUseTransition(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	stateC := &MockState{ID: "C"}

	sm := NewBaseStateMachine(stateA)

	// Add a valid transition from A to B
	if err := sm.AddTransition("A", "B", func() bool { return true }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// Add a blocked transition from B to C
	if err := sm.AddTransition("B", "C", func() bool { return false }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// --- Test valid transition ---
	stateA.reset()
	if err := sm.ChangeState(stateB); err != nil {
		t.Errorf("Expected transition from A to B to be allowed, but got error: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to be B, but got %s", sm.GetCurrentState().GetID())
	}

	// --- Test blocked transition ---
	stateB.reset()
	err := sm.ChangeState(stateC)
	if err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to remain B after a blocked transition, but got %s", sm.GetCurrentState().GetID())
	}
	if stateB.OnExitCalled {
		t.Error("OnExit should not be called on the current state if transition is blocked")
	}
	if stateC.OnEnterCalled {
		t.Error("OnEnter should not be called on the new state if transition is blocked")
	}
}

func TestStateMachine_UnregisteredTargetRejected(t *testing.T) {
	stateA := &MockState{ID: "A"}
	sm := NewBaseStateMachine(stateA)
	sm.AddTransition("A", "B", nil)

	if err := sm.ChangeState(&MockState{ID: "C"}); err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed for unregistered target, got %v", err)
	}
	if err := sm.ChangeState(&MockState{ID: "B"}); err != nil {
		t.Errorf("Expected registered transition with nil condition to pass, got %v", err)
	}
}

// fakeClock is satisfied by the clockwork fake clock.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// fakeRoom is a minimal RoomContext driven by a fake clock.
type fakeRoom struct {
	clock     fakeClock
	timers    *timer.TimerManager
	sm        *BaseStateMachine
	players   int
	round     int
	deadline  time.Time
	resolved  int
	states    int
	timerMsgs []time.Time
}

func newFakeRoom() *fakeRoom {
	clock := clockwork.NewFakeClock()
	r := &fakeRoom{
		clock:  clock,
		timers: timer.NewTimerManager(clock, 0),
	}
	r.sm = NewBaseStateMachine(NewWaitingState(r))
	return r
}

func (r *fakeRoom) GetID() string    { return "fake" }
func (r *fakeRoom) Now() time.Time   { return r.clock.Now() }
func (r *fakeRoom) PlayerCount() int { return r.players }

func (r *fakeRoom) Transition(phase Phase) error {
	switch phase {
	case PhaseBetting:
		return r.sm.ChangeState(NewBettingState(r, 30*time.Second, 250*time.Millisecond))
	case PhaseSpinning:
		return r.sm.ChangeState(NewSpinningState(r, 1600*time.Millisecond))
	default:
		return r.sm.ChangeState(NewWaitingState(r))
	}
}

func (r *fakeRoom) Schedule(delay, interval time.Duration, callback func()) int64 {
	return r.timers.AddTimer(delay, interval, callback)
}

func (r *fakeRoom) Cancel(timerID int64) { r.timers.RemoveTimer(timerID) }

func (r *fakeRoom) OpenRound(window time.Duration) (int, time.Time) {
	r.round++
	r.deadline = r.clock.Now().Add(window)
	return r.round, r.deadline
}

func (r *fakeRoom) ClearDeadline()  { r.deadline = time.Time{} }
func (r *fakeRoom) Resolve()        { r.resolved++ }
func (r *fakeRoom) BroadcastState() { r.states++ }

func (r *fakeRoom) BroadcastTimer(now, deadline time.Time) {
	r.timerMsgs = append(r.timerMsgs, now)
}

func (r *fakeRoom) advance(d time.Duration) {
	r.clock.Advance(d)
	r.timers.RunDue()
}

func TestBettingState_CountdownThenSpin(t *testing.T) {
	r := newFakeRoom()
	r.players = 1

	if err := r.Transition(PhaseBetting); err != nil {
		t.Fatalf("Transition to betting failed: %v", err)
	}
	if r.round != 1 {
		t.Fatalf("Expected round 1, got %d", r.round)
	}
	if !r.sm.GetCurrentState().AcceptsBets() {
		t.Fatal("Betting state should accept bets")
	}

	for i := 0; i < 119; i++ {
		r.advance(250 * time.Millisecond)
	}
	if r.sm.GetCurrentState().GetID() != PhaseBetting {
		t.Fatalf("Expected betting before the deadline, got %s", r.sm.GetCurrentState().GetID())
	}

	r.advance(250 * time.Millisecond)
	if r.sm.GetCurrentState().GetID() != PhaseSpinning {
		t.Fatalf("Expected spinning at the deadline, got %s", r.sm.GetCurrentState().GetID())
	}
	if len(r.timerMsgs) != 120 {
		t.Errorf("Expected 120 timer broadcasts, got %d", len(r.timerMsgs))
	}

	// the tick is cancelled once spinning
	r.advance(250 * time.Millisecond)
	if len(r.timerMsgs) != 120 {
		t.Errorf("Tick kept running after betting ended: %d broadcasts", len(r.timerMsgs))
	}

	r.advance(1350 * time.Millisecond)
	if r.resolved != 1 {
		t.Fatalf("Expected one resolution after the spin delay, got %d", r.resolved)
	}
	if r.sm.GetCurrentState().GetID() != PhaseBetting || r.round != 2 {
		t.Errorf("Expected round 2 betting, got %s round %d", r.sm.GetCurrentState().GetID(), r.round)
	}
}

func TestSpinningState_EmptyRoomGoesIdle(t *testing.T) {
	r := newFakeRoom()
	r.players = 1
	r.Transition(PhaseBetting)
	r.Transition(PhaseSpinning)

	r.players = 0
	r.advance(1600 * time.Millisecond)

	if r.sm.GetCurrentState().GetID() != PhaseWaiting {
		t.Errorf("Expected waiting after resolving with no players, got %s", r.sm.GetCurrentState().GetID())
	}
	if !r.deadline.IsZero() {
		t.Error("Waiting should clear the deadline")
	}
	if r.timers.Len() != 0 {
		t.Errorf("Expected no pending timers, got %d", r.timers.Len())
	}
}

func TestSpinningState_ExitCancelsResolution(t *testing.T) {
	r := newFakeRoom()
	r.players = 1
	r.Transition(PhaseBetting)
	r.Transition(PhaseSpinning)
	r.Transition(PhaseWaiting)

	r.advance(5 * time.Second)
	if r.resolved != 0 {
		t.Errorf("Cancelled spin should not resolve, got %d resolutions", r.resolved)
	}
}
