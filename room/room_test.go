package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/roulette/network"
	"github.com/wfunc/roulette/state"
	"github.com/wfunc/roulette/timer"
	"github.com/wfunc/roulette/wheel"
)

type message struct {
	RoomID string
	MsgID  uint16
	Data   []byte
}

// MockBroadcaster is a test double for the Broadcaster interface that records
// every message.
type MockBroadcaster struct {
	mutex    sync.Mutex
	messages []message
}

func (m *MockBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messages = append(m.messages, message{RoomID: roomID, MsgID: msgID, Data: data})
	return nil
}

func (m *MockBroadcaster) count(msgID uint16) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.MsgID == msgID {
			n++
		}
	}
	return n
}

func (m *MockBroadcaster) all(msgID uint16) []message {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var out []message
	for _, msg := range m.messages {
		if msg.MsgID == msgID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MockBroadcaster) total() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.messages)
}

// MockRecorder counts metric events.
type MockRecorder struct {
	bets        int
	wagered     int64
	rounds      int
	activeRooms int
}

func (m *MockRecorder) BetPlaced(amount int64) { m.bets++; m.wagered += amount }
func (m *MockRecorder) RoundResolved()         { m.rounds++ }
func (m *MockRecorder) SetActiveRooms(n int)   { m.activeRooms = n }

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type harness struct {
	clock       fakeClock
	timers      *timer.TimerManager
	broadcaster *MockBroadcaster
	recorder    *MockRecorder
	number      int
	options     Options
}

func newHarness() *harness {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	h := &harness{
		clock:       clock,
		timers:      timer.NewTimerManager(clock, 0),
		broadcaster: &MockBroadcaster{},
		recorder:    &MockRecorder{},
	}
	h.options = Options{
		Settings:    DefaultSettings(),
		Clock:       clock,
		Scheduler:   h.timers,
		Generator:   wheel.GeneratorFunc(func() int { return h.number }),
		Broadcaster: h.broadcaster,
		Recorder:    h.recorder,
	}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.timers.RunDue()
}

// advanceTicks moves time forward in tick-sized steps so every tick runs.
func (h *harness) advanceTicks(d time.Duration) {
	step := h.options.Settings.TickInterval
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.advance(step)
	}
}

func mustJoin(t *testing.T, r *Room, name string) Player {
	t.Helper()
	p, err := r.Join(name, nil)
	if err != nil {
		t.Fatalf("Join(%s) failed: %v", name, err)
	}
	return p
}

func TestRoom_JoinOpensBetting(t *testing.T) {
	h := newHarness()
	room := NewRoom("test_room_1", h.options)

	if room.Phase() != state.PhaseWaiting || room.Round() != 0 {
		t.Fatalf("New room should be waiting at round 0, got %s round %d", room.Phase(), room.Round())
	}

	player := mustJoin(t, room, "alice")

	if player.Balance != 1000 {
		t.Errorf("Expected starting balance 1000, got %d", player.Balance)
	}
	if room.Phase() != state.PhaseBetting {
		t.Errorf("Expected betting after first join, got %s", room.Phase())
	}
	if room.Round() != 1 {
		t.Errorf("Expected round 1, got %d", room.Round())
	}

	snap := room.Snapshot()
	want := h.clock.Now().Add(30 * time.Second).UnixMilli()
	if snap.Deadline != want {
		t.Errorf("Expected deadline %d, got %d", want, snap.Deadline)
	}
	if len(snap.Wheel) != wheel.Pockets {
		t.Errorf("Expected wheel order of %d pockets, got %d", wheel.Pockets, len(snap.Wheel))
	}
}

func TestRoom_JoinAckPrecedesBroadcast(t *testing.T) {
	h := newHarness()
	room := NewRoom("ack_room", h.options)

	var ackSnapshot Snapshot
	before := -1
	_, err := room.Join("alice", func(p Player, snap Snapshot) {
		before = h.broadcaster.total()
		ackSnapshot = snap
	})
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if before != 0 {
		t.Errorf("Join callback should run before any broadcast, saw %d messages", before)
	}
	if len(ackSnapshot.Players) != 1 || ackSnapshot.Players[0].Name != "alice" {
		t.Errorf("Ack snapshot should contain the new player: %+v", ackSnapshot.Players)
	}
	if h.broadcaster.count(network.MsgTypeRoomUpdate) != 1 {
		t.Errorf("Expected one room_update after join, got %d", h.broadcaster.count(network.MsgTypeRoomUpdate))
	}
}

func TestRoom_Capacity(t *testing.T) {
	h := newHarness()
	room := NewRoom("full_room", h.options)

	for i := 0; i < 5; i++ {
		mustJoin(t, room, "player")
	}
	updates := h.broadcaster.count(network.MsgTypeRoomUpdate)

	if _, err := room.Join("sixth", nil); err != ErrRoomFull {
		t.Fatalf("Expected ErrRoomFull, got %v", err)
	}
	if room.PlayerCount() != 5 {
		t.Errorf("Roster changed after rejected join: %d", room.PlayerCount())
	}
	if got := h.broadcaster.count(network.MsgTypeRoomUpdate); got != updates {
		t.Errorf("Rejected join should not broadcast, room_update count %d -> %d", updates, got)
	}
}

func TestRoom_PlaceBetEscrowsStake(t *testing.T) {
	h := newHarness()
	room := NewRoom("bet_room", h.options)
	alice := mustJoin(t, room, "alice")

	err := room.PlaceBet(alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 100})
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	p, _ := room.Player(alice.ID)
	if p.Balance != 900 {
		t.Errorf("Expected balance 900 after escrow, got %d", p.Balance)
	}

	bets := room.Bets(alice.ID)
	if len(bets) != 1 || bets[0].Round != 1 {
		t.Fatalf("Expected one bet stamped round 1, got %+v", bets)
	}

	snap := room.Snapshot()
	if snap.Bets["color:red"] != 100 {
		t.Errorf("Expected aggregated 100 on color:red, got %v", snap.Bets)
	}
	if h.recorder.bets != 1 || h.recorder.wagered != 100 {
		t.Errorf("Recorder saw %d bets / %d chips", h.recorder.bets, h.recorder.wagered)
	}
}

func TestRoom_PlaceBetErrors(t *testing.T) {
	h := newHarness()
	room := NewRoom("err_room", h.options)
	alice := mustJoin(t, room, "alice")

	cases := []struct {
		name     string
		playerID string
		bet      wheel.Bet
		want     error
	}{
		{"unknown player", "nobody", wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 10}, ErrPlayerNotFound},
		{"zero amount", alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 0}, ErrInvalidAmount},
		{"negative amount", alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: -5}, ErrInvalidAmount},
		{"over balance", alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 1001}, ErrInsufficientChips},
		{"bad number", alice.ID, wheel.Bet{Type: wheel.BetNumber, Value: "37", Amount: 10}, ErrInvalidBet},
		{"bad type", alice.ID, wheel.Bet{Type: "split", Value: "1", Amount: 10}, ErrInvalidBet},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := room.PlaceBet(tc.playerID, tc.bet); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	p, _ := room.Player(alice.ID)
	if p.Balance != 1000 || len(room.Bets(alice.ID)) != 0 {
		t.Errorf("Rejected bets must not touch balance or ledger: balance %d, %d bets", p.Balance, len(room.Bets(alice.ID)))
	}
}

func TestRoom_PlaceBetOutsideBetting(t *testing.T) {
	h := newHarness()
	room := NewRoom("phase_room", h.options)
	alice := mustJoin(t, room, "alice")

	h.advanceTicks(30 * time.Second)
	if room.Phase() != state.PhaseSpinning {
		t.Fatalf("Expected spinning, got %s", room.Phase())
	}

	err := room.PlaceBet(alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 10})
	if err != ErrNotInBettingPhase {
		t.Errorf("Expected ErrNotInBettingPhase, got %v", err)
	}
}

func TestRoom_FullRoundRedWins(t *testing.T) {
	h := newHarness()
	h.number = 3 // red
	room := NewRoom("round_room", h.options)
	alice := mustJoin(t, room, "alice")
	start := h.clock.Now()

	if err := room.PlaceBet(alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 100}); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	h.advanceTicks(30 * time.Second)
	if room.Phase() != state.PhaseSpinning {
		t.Fatalf("Expected spinning after the window, got %s", room.Phase())
	}

	// every timer broadcast carries the same deadline, 30s after betting opened
	timerMsgs := h.broadcaster.all(network.MsgTypeTimer)
	if len(timerMsgs) != 120 {
		t.Errorf("Expected 120 timer broadcasts, got %d", len(timerMsgs))
	}
	for _, msg := range timerMsgs {
		var tu TimerUpdate
		if err := json.Unmarshal(msg.Data, &tu); err != nil {
			t.Fatalf("Bad timer payload: %v", err)
		}
		if tu.Deadline-start.UnixMilli() != 30000 {
			t.Fatalf("Expected 30000ms window, got %d", tu.Deadline-start.UnixMilli())
		}
	}

	h.advance(1599 * time.Millisecond)
	if h.broadcaster.count(network.MsgTypeSpinResult) != 0 {
		t.Fatal("Resolved before the spin delay elapsed")
	}
	h.advance(time.Millisecond)

	results := h.broadcaster.all(network.MsgTypeSpinResult)
	if len(results) != 1 {
		t.Fatalf("Expected one spin_result, got %d", len(results))
	}
	var result SpinResult
	if err := json.Unmarshal(results[0].Data, &result); err != nil {
		t.Fatalf("Bad spin_result payload: %v", err)
	}
	if result.Number != 3 || result.Color != wheel.ColorRed || result.Round != 1 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if len(result.Payouts) != 1 || result.Payouts[0].Net != 0 || result.Payouts[0].Balance != 1000 {
		t.Errorf("Unexpected payouts: %+v", result.Payouts)
	}

	p, _ := room.Player(alice.ID)
	if p.Balance != 1000 {
		t.Errorf("Expected balance 1000 after red win, got %d", p.Balance)
	}
	if room.Round() != 2 || room.Phase() != state.PhaseBetting {
		t.Errorf("Expected round 2 betting, got round %d %s", room.Round(), room.Phase())
	}
	if len(room.Bets(alice.ID)) != 0 {
		t.Error("Ledger should be reset when the next round opens")
	}

	snap := room.Snapshot()
	if snap.LastResult == nil || snap.LastResult.Number != 3 || len(snap.History) != 1 {
		t.Errorf("Unexpected history: last=%v history=%v", snap.LastResult, snap.History)
	}
	if h.recorder.rounds != 1 {
		t.Errorf("Expected one resolved round recorded, got %d", h.recorder.rounds)
	}
}

func TestRoom_LosingOutcomesKeepEscrow(t *testing.T) {
	for _, n := range []int{0, 2} { // neutral, black
		h := newHarness()
		h.number = n
		room := NewRoom("lose_room", h.options)
		alice := mustJoin(t, room, "alice")
		room.PlaceBet(alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 100})

		h.advanceTicks(30 * time.Second)
		h.advance(1600 * time.Millisecond)

		p, _ := room.Player(alice.ID)
		if p.Balance != 900 {
			t.Errorf("Outcome %d: expected balance 900, got %d", n, p.Balance)
		}
		if room.Round() != 2 {
			t.Errorf("Outcome %d: expected round 2, got %d", n, room.Round())
		}
	}
}

func TestRoom_StraightUpCredits35x(t *testing.T) {
	h := newHarness()
	h.number = 17
	room := NewRoom("straight_room", h.options)
	alice := mustJoin(t, room, "alice")

	room.PlaceBet(alice.ID, wheel.Bet{Type: wheel.BetNumber, Value: "17", Amount: 10})
	room.PlaceBet(alice.ID, wheel.Bet{Type: wheel.BetDozen, Value: "1", Amount: 10})

	h.advanceTicks(30 * time.Second)
	h.advance(1600 * time.Millisecond)

	p, _ := room.Player(alice.ID)
	// 1000 - 20 escrowed + 35*10 credited; the dozen bet loses
	if p.Balance != 1330 {
		t.Errorf("Expected balance 1330, got %d", p.Balance)
	}
}

func TestRoom_SettlementIgnoresOtherRounds(t *testing.T) {
	h := newHarness()
	h.number = 3
	room := NewRoom("stamp_room", h.options)
	alice := mustJoin(t, room, "alice")

	// a bet stamped with another round must be inert
	room.mutex.Lock()
	room.ledger[alice.ID] = append(room.ledger[alice.ID], wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 500, Round: 0})
	room.mutex.Unlock()

	if total := room.Snapshot().Bets["color:red"]; total != 0 {
		t.Errorf("Stale bet leaked into aggregation: %d", total)
	}

	h.advanceTicks(30 * time.Second)
	h.advance(1600 * time.Millisecond)

	p, _ := room.Player(alice.ID)
	if p.Balance != 1000 {
		t.Errorf("Stale bet was settled: balance %d", p.Balance)
	}
}

func TestRoom_LastPlayerLeavesDuringBetting(t *testing.T) {
	h := newHarness()
	room := NewRoom("leave_room", h.options)
	alice := mustJoin(t, room, "alice")

	h.advanceTicks(time.Second)
	ticks := h.broadcaster.count(network.MsgTypeTimer)

	remaining, removed := room.Leave(alice.ID)
	if !removed || remaining != 0 {
		t.Fatalf("Leave returned remaining=%d removed=%v", remaining, removed)
	}
	if room.Phase() != state.PhaseWaiting {
		t.Errorf("Expected waiting once empty, got %s", room.Phase())
	}
	if room.Snapshot().Deadline != 0 {
		t.Error("Waiting room should have no deadline")
	}
	if h.timers.Len() != 0 {
		t.Errorf("Expected all timers cancelled, %d pending", h.timers.Len())
	}

	h.advanceTicks(5 * time.Second)
	if got := h.broadcaster.count(network.MsgTypeTimer); got != ticks {
		t.Errorf("Ticks continued after the room emptied: %d -> %d", ticks, got)
	}
}

func TestRoom_LeaveDuringSpinningKeepsOthers(t *testing.T) {
	h := newHarness()
	h.number = 3
	room := NewRoom("spin_leave_room", h.options)
	alice := mustJoin(t, room, "alice")
	bob := mustJoin(t, room, "bob")

	room.PlaceBet(alice.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 100})
	room.PlaceBet(bob.ID, wheel.Bet{Type: wheel.BetColor, Value: "red", Amount: 50})

	h.advanceTicks(30 * time.Second)
	room.Leave(alice.ID)
	h.advance(1600 * time.Millisecond)

	p, _ := room.Player(bob.ID)
	// 1000 - 50 escrowed + 50 credited
	if p.Balance != 1000 {
		t.Errorf("Expected bob back at 1000, balance %d", p.Balance)
	}
	if room.Phase() != state.PhaseBetting || room.Round() != 2 {
		t.Errorf("Expected round 2 betting, got %s round %d", room.Phase(), room.Round())
	}
}

func TestRoom_HistoryIsBounded(t *testing.T) {
	h := newHarness()
	h.options.Settings.HistoryLimit = 3
	room := NewRoom("history_room", h.options)
	mustJoin(t, room, "alice")

	for i := 0; i < 5; i++ {
		h.number = i
		h.advanceTicks(30 * time.Second)
		h.advance(1600 * time.Millisecond)
	}

	snap := room.Snapshot()
	if len(snap.History) != 3 {
		t.Fatalf("Expected 3 history entries, got %d", len(snap.History))
	}
	if snap.History[0].Number != 2 || snap.LastResult.Number != 4 {
		t.Errorf("Expected oldest entries evicted, got %+v", snap.History)
	}
	if room.Round() != 6 {
		t.Errorf("Expected round 6, got %d", room.Round())
	}
}

func TestRoom_PlayersOrderedByJoin(t *testing.T) {
	h := newHarness()
	room := NewRoom("order_room", h.options)
	a := mustJoin(t, room, "a")
	h.advance(time.Millisecond)
	b := mustJoin(t, room, "b")
	h.advance(time.Millisecond)
	c := mustJoin(t, room, "c")
	room.Leave(b.ID)

	players := room.Snapshot().Players
	if len(players) != 2 || players[0].ID != a.ID || players[1].ID != c.ID {
		t.Errorf("Unexpected roster order: %+v", players)
	}
}

func TestRoom_ResolutionFaultClosesRoom(t *testing.T) {
	h := newHarness()
	h.number = 99 // out of range
	var released []string
	h.options.OnClosed = func(roomID string, playerIDs []string) {
		if roomID != "fault_room" {
			t.Errorf("OnClosed for %s", roomID)
		}
		released = playerIDs
	}
	room := NewRoom("fault_room", h.options)
	alice := mustJoin(t, room, "alice")
	bob := mustJoin(t, room, "bob")

	h.advanceTicks(30 * time.Second)
	h.advance(1600 * time.Millisecond)

	if !room.Closed() {
		t.Fatal("Room should be closed after a resolution fault")
	}
	if h.timers.Len() != 0 {
		t.Errorf("Faulted room left %d timers behind", h.timers.Len())
	}
	if h.broadcaster.count(network.MsgTypeError) != 1 {
		t.Error("Expected a room_closed error broadcast")
	}
	if len(released) != 2 || released[0] != alice.ID || released[1] != bob.ID {
		t.Errorf("Expected both seated players released, got %v", released)
	}
	if _, err := room.Join("carol", nil); err != ErrRoomClosed {
		t.Errorf("Expected ErrRoomClosed, got %v", err)
	}
}

// stallingBroadcaster blocks every timer broadcast until release is closed.
type stallingBroadcaster struct {
	release chan struct{}
}

func (b *stallingBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	if msgID == network.MsgTypeTimer {
		<-b.release
	}
	return nil
}

// signalBroadcaster reports each timer broadcast on ticks.
type signalBroadcaster struct {
	ticks chan struct{}
}

func (b *signalBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	if msgID == network.MsgTypeTimer {
		select {
		case b.ticks <- struct{}{}:
		default:
		}
	}
	return nil
}

func TestRoom_StalledRoomDoesNotBlockOthers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timers := timer.NewTimerManager(clock, 10*time.Millisecond)
	options := Options{
		Settings:  DefaultSettings(),
		Clock:     clock,
		Scheduler: timers,
		Generator: wheel.GeneratorFunc(func() int { return 3 }),
	}

	stalled := &stallingBroadcaster{release: make(chan struct{})}
	defer close(stalled.release)
	options.Broadcaster = stalled
	slow := NewRoom("slow_room", options)

	healthy := &signalBroadcaster{ticks: make(chan struct{}, 1)}
	options.Broadcaster = healthy
	fast := NewRoom("fast_room", options)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timers.Run(ctx)
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}

	// the slow room joins first so its tick is due ahead of the fast room's
	mustJoin(t, slow, "alice")
	mustJoin(t, fast, "bob")

	for i := 0; i < 20; i++ {
		clock.Advance(250 * time.Millisecond)
		select {
		case <-healthy.ticks:
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("A stalled room's broadcast kept the other room from ticking")
}

func TestErrorCode(t *testing.T) {
	if ErrorCode(ErrInsufficientChips) != "insufficient_chips" {
		t.Errorf("Unexpected code %q", ErrorCode(ErrInsufficientChips))
	}
	if ErrorCode(wheel.ErrInvalidBet) != "invalid_bet" {
		t.Errorf("Unexpected code %q", ErrorCode(wheel.ErrInvalidBet))
	}
	if ErrorCode(errors.New("boom")) != "internal_error" {
		t.Errorf("Unknown errors should map to internal_error")
	}
}
