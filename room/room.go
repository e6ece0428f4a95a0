// room/room.go
package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/wfunc/roulette/logger"
	"github.com/wfunc/roulette/network"
	"github.com/wfunc/roulette/state"
	"github.com/wfunc/roulette/wheel"
)

// Settings 房间的游戏参数
type Settings struct {
	MaxPlayers      int
	StartingBalance int64
	BettingWindow   time.Duration
	SpinDelay       time.Duration
	TickInterval    time.Duration
	HistoryLimit    int
}

func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:      5,
		StartingBalance: 1000,
		BettingWindow:   30 * time.Second,
		SpinDelay:       1600 * time.Millisecond,
		TickInterval:    250 * time.Millisecond,
		HistoryLimit:    20,
	}
}

// Options carries the collaborators shared by every room of a Manager.
type Options struct {
	Settings    Settings
	Clock       clockwork.Clock
	Scheduler   Scheduler
	Generator   wheel.Generator
	Broadcaster Broadcaster
	Recorder    Recorder
	// OnClosed, if set, runs under the room's lock after an internal fault
	// closes the room, with the players that were seated. It must not call
	// back into the room or its manager.
	OnClosed func(roomID string, playerIDs []string)
}

// Player is owned by its room and destroyed when it leaves.
type Player struct {
	ID       string
	Name     string
	Balance  int64
	JoinedAt time.Time
}

// JoinFunc is invoked with the new player before the room announces the join,
// so the joiner receives its acknowledgment ahead of the room_update.
type JoinFunc func(player Player, snapshot Snapshot)

// Room 是游戏房间的核心结构。
// All mutations, including timer callbacks, run under mutex, one at a time.
type Room struct {
	ID        string
	CreatedAt time.Time

	settings    Settings
	clock       clockwork.Clock
	scheduler   Scheduler
	generator   wheel.Generator
	broadcaster Broadcaster
	recorder    Recorder
	onClosed    func(roomID string, playerIDs []string)

	mutex        sync.Mutex
	stateMachine *state.BaseStateMachine
	players      map[string]*Player // playerID -> player
	order        []string           // join order, for display
	round        int
	deadline     time.Time
	ledger       map[string][]wheel.Bet // playerID -> bets
	history      []wheel.Outcome
	timers       map[int64]struct{}
	closed       bool
}

// NewRoom 创建一个新房间
func NewRoom(id string, opts Options) *Room {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Generator == nil {
		opts.Generator = wheel.CryptoGenerator{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	r := &Room{
		ID:          id,
		CreatedAt:   opts.Clock.Now(),
		settings:    opts.Settings,
		clock:       opts.Clock,
		scheduler:   opts.Scheduler,
		generator:   opts.Generator,
		broadcaster: opts.Broadcaster,
		recorder:    opts.Recorder,
		onClosed:    opts.OnClosed,
		players:     make(map[string]*Player),
		ledger:      make(map[string][]wheel.Bet),
		timers:      make(map[int64]struct{}),
	}

	ctx := roomContext{room: r}
	r.stateMachine = state.NewBaseStateMachine(state.NewWaitingState(ctx))

	hasPlayers := func() bool { return len(r.players) > 0 }
	r.stateMachine.AddTransition(state.PhaseWaiting, state.PhaseBetting, hasPlayers)
	r.stateMachine.AddTransition(state.PhaseBetting, state.PhaseSpinning, nil)
	r.stateMachine.AddTransition(state.PhaseBetting, state.PhaseWaiting, nil)
	r.stateMachine.AddTransition(state.PhaseSpinning, state.PhaseBetting, hasPlayers)
	r.stateMachine.AddTransition(state.PhaseSpinning, state.PhaseWaiting, nil)

	return r
}

// Join adds a player with the starting balance. The first player of an idle
// room opens betting.
func (r *Room) Join(name string, onJoined JoinFunc) (Player, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return Player{}, ErrRoomClosed
	}
	if len(r.players) >= r.settings.MaxPlayers {
		return Player{}, ErrRoomFull
	}

	player := &Player{
		ID:       uuid.New().String(),
		Name:     name,
		Balance:  r.settings.StartingBalance,
		JoinedAt: r.clock.Now(),
	}
	r.players[player.ID] = player
	r.order = append(r.order, player.ID)

	logger.Log.Infof("Player %s (%s) joined room %s, %d/%d", player.ID, name, r.ID, len(r.players), r.settings.MaxPlayers)

	if onJoined != nil {
		onJoined(*player, r.snapshotLocked())
	}

	if r.phaseLocked() == state.PhaseWaiting {
		if err := r.transitionLocked(state.PhaseBetting); err != nil {
			logger.Log.Errorf("Room %s failed to open betting: %v", r.ID, err)
		}
	} else {
		r.broadcastStateLocked()
	}

	return *player, nil
}

// Leave removes a player and its bets; escrowed stakes are forfeited. It
// returns the remaining roster size and whether the player was present.
func (r *Room) Leave(playerID string) (int, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.players[playerID]; !exists {
		return len(r.players), false
	}

	delete(r.players, playerID)
	delete(r.ledger, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	logger.Log.Infof("Player %s left room %s, %d remaining", playerID, r.ID, len(r.players))

	if r.closed {
		return len(r.players), true
	}

	if len(r.players) == 0 {
		if r.phaseLocked() != state.PhaseWaiting {
			if err := r.transitionLocked(state.PhaseWaiting); err != nil {
				logger.Log.Errorf("Room %s failed to go idle: %v", r.ID, err)
			}
		}
	} else {
		r.broadcastStateLocked()
	}

	return len(r.players), true
}

// PlaceBet validates and escrows a bet for the current round.
func (r *Room) PlaceBet(playerID string, bet wheel.Bet) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	player, exists := r.players[playerID]
	if !exists {
		return ErrPlayerNotFound
	}
	if r.closed || !r.stateMachine.GetCurrentState().AcceptsBets() {
		return ErrNotInBettingPhase
	}
	if bet.Amount <= 0 {
		return ErrInvalidAmount
	}
	if player.Balance < bet.Amount {
		return ErrInsufficientChips
	}
	if err := bet.Validate(); err != nil {
		return err
	}

	player.Balance -= bet.Amount
	bet.Round = r.round
	r.ledger[playerID] = append(r.ledger[playerID], bet)
	r.recorder.BetPlaced(bet.Amount)

	r.broadcastStateLocked()
	return nil
}

// Close stops the room's timers and discards its state.
func (r *Room) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return
	}
	if r.phaseLocked() != state.PhaseWaiting {
		if err := r.transitionLocked(state.PhaseWaiting); err != nil {
			logger.Log.Errorf("Room %s failed to go idle on close: %v", r.ID, err)
		}
	}
	r.cancelTimersLocked()
	r.closed = true
	r.ledger = make(map[string][]wheel.Bet)
	r.history = nil
}

// --- 只读访问 ---

func (r *Room) Phase() state.Phase {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.phaseLocked()
}

func (r *Room) Round() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.round
}

func (r *Room) PlayerCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.players)
}

func (r *Room) Closed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.closed
}

// Player returns a copy of a player's current state.
func (r *Room) Player(playerID string) (Player, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, exists := r.players[playerID]
	if !exists {
		return Player{}, false
	}
	return *p, true
}

// Bets returns a copy of a player's ledger.
func (r *Room) Bets(playerID string) []wheel.Bet {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]wheel.Bet(nil), r.ledger[playerID]...)
}

func (r *Room) Snapshot() Snapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshotLocked()
}

// --- 内部实现，调用方必须持有 mutex ---

func (r *Room) phaseLocked() state.Phase {
	return r.stateMachine.GetCurrentState().GetID()
}

func (r *Room) transitionLocked(phase state.Phase) error {
	ctx := roomContext{room: r}

	var next state.State
	switch phase {
	case state.PhaseBetting:
		next = state.NewBettingState(ctx, r.settings.BettingWindow, r.settings.TickInterval)
	case state.PhaseSpinning:
		next = state.NewSpinningState(ctx, r.settings.SpinDelay)
	case state.PhaseWaiting:
		next = state.NewWaitingState(ctx)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}

	from := r.phaseLocked()
	if err := r.stateMachine.ChangeState(next); err != nil {
		return fmt.Errorf("%s -> %s: %w", from, phase, err)
	}
	logger.Log.Infof("房间 %s 阶段切换 %s -> %s", r.ID, from, phase)
	return nil
}

// runScheduled executes a timer callback as one serialized step. A panic is
// fatal to this room only.
func (r *Room) runScheduled(callback func()) {
	if r.closed {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorf("Room %s closed after internal fault: %v", r.ID, p)
			r.cancelTimersLocked()
			r.closed = true
			r.broadcastLocked(network.MsgTypeError, ErrorMessage{Code: ErrRoomClosed.Error()})
			if r.onClosed != nil {
				r.onClosed(r.ID, append([]string(nil), r.order...))
			}
		}
	}()
	callback()
}

func (r *Room) cancelTimersLocked() {
	for id := range r.timers {
		r.scheduler.RemoveTimer(id)
	}
	r.timers = make(map[int64]struct{})
}

func (r *Room) openRoundLocked(window time.Duration) (int, time.Time) {
	r.round++
	r.ledger = make(map[string][]wheel.Bet)
	r.deadline = r.clock.Now().Add(window)
	return r.round, r.deadline
}

func (r *Room) resolveLocked() {
	number := r.generator.Draw()
	if number < 0 || number >= wheel.Pockets {
		panic(fmt.Sprintf("generator returned %d", number))
	}

	outcome := wheel.NewOutcome(number, r.clock.Now())
	r.history = append(r.history, outcome)
	if limit := r.settings.HistoryLimit; limit > 0 && len(r.history) > limit {
		r.history = append([]wheel.Outcome(nil), r.history[len(r.history)-limit:]...)
	}

	payouts := r.settleLocked(outcome)
	r.recorder.RoundResolved()

	logger.Log.Infof("Room %s round %d result: %d %s", r.ID, r.round, outcome.Number, outcome.Color)

	r.broadcastLocked(network.MsgTypeSpinResult, SpinResult{
		Round:     r.round,
		Number:    outcome.Number,
		Color:     outcome.Color,
		Timestamp: outcome.Timestamp,
		Payouts:   payouts,
	})
	r.broadcastStateLocked()
}

// settleLocked credits winning bets of the current round. Bets stamped with
// any other round are ignored.
func (r *Room) settleLocked(outcome wheel.Outcome) []Payout {
	payouts := make([]Payout, 0, len(r.order))
	for _, id := range r.order {
		player := r.players[id]

		var wagered, returned int64
		for _, b := range r.ledger[id] {
			if b.Round != r.round {
				continue
			}
			wagered += b.Amount
			returned += b.Payout(outcome.Number)
		}
		player.Balance += returned

		payouts = append(payouts, Payout{
			PlayerID: id,
			Wagered:  wagered,
			Returned: returned,
			Net:      returned - wagered,
			Balance:  player.Balance,
		})
	}
	return payouts
}

// ErrorMessage is the payload of MsgTypeError.
type ErrorMessage struct {
	Code string `json:"code"`
}

func (r *Room) broadcastStateLocked() {
	r.broadcastLocked(network.MsgTypeRoomUpdate, r.snapshotLocked())
}

func (r *Room) broadcastLocked(msgID uint16, payload interface{}) {
	if r.broadcaster == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorf("Room %s failed to marshal message %d: %v", r.ID, msgID, err)
		return
	}
	if err := r.broadcaster.BroadcastToRoom(r.ID, msgID, data); err != nil {
		logger.Log.Debugf("Room %s broadcast %d: %v", r.ID, msgID, err)
	}
}
