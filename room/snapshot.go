package room

import (
	"time"

	"github.com/wfunc/roulette/state"
	"github.com/wfunc/roulette/wheel"
)

// PlayerView 玩家的公开信息
type PlayerView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Balance  int64  `json:"balance"`
	JoinedAt int64  `json:"joinedAt"`
}

// Snapshot is the room_update payload.
type Snapshot struct {
	RoomID     string           `json:"roomId"`
	Round      int              `json:"round"`
	Phase      state.Phase      `json:"phase"`
	Deadline   int64            `json:"deadline"` // unix ms, 0 when no countdown
	Players    []PlayerView     `json:"players"`
	LastResult *wheel.Outcome   `json:"lastResult"`
	History    []wheel.Outcome  `json:"history"`
	Bets       map[string]int64 `json:"bets"`
	Wheel      []int            `json:"wheel"`
}

// TimerUpdate is broadcast on every betting tick.
type TimerUpdate struct {
	Now      int64 `json:"now"`
	Deadline int64 `json:"deadline"`
}

// Payout 单个玩家在一轮中的结算
type Payout struct {
	PlayerID string `json:"playerId"`
	Wagered  int64  `json:"wagered"`
	Returned int64  `json:"returned"`
	Net      int64  `json:"net"`
	Balance  int64  `json:"balance"`
}

// SpinResult is broadcast once per resolution.
type SpinResult struct {
	Round     int         `json:"round"`
	Number    int         `json:"number"`
	Color     wheel.Color `json:"color"`
	Timestamp int64       `json:"timestamp"`
	Payouts   []Payout    `json:"payouts"`
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (r *Room) snapshotLocked() Snapshot {
	players := make([]PlayerView, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		players = append(players, PlayerView{
			ID:       p.ID,
			Name:     p.Name,
			Balance:  p.Balance,
			JoinedAt: p.JoinedAt.UnixMilli(),
		})
	}

	var last *wheel.Outcome
	if n := len(r.history); n > 0 {
		outcome := r.history[n-1]
		last = &outcome
	}

	return Snapshot{
		RoomID:     r.ID,
		Round:      r.round,
		Phase:      r.phaseLocked(),
		Deadline:   unixMilli(r.deadline),
		Players:    players,
		LastResult: last,
		History:    append([]wheel.Outcome{}, r.history...),
		Bets:       r.betTotalsLocked(),
		Wheel:      append([]int{}, wheel.Order[:]...),
	}
}

// betTotalsLocked sums current-round stakes per table spot, for display only.
func (r *Room) betTotalsLocked() map[string]int64 {
	totals := make(map[string]int64)
	for _, bets := range r.ledger {
		for _, b := range bets {
			if b.Round != r.round {
				continue
			}
			totals[b.Spot()] += b.Amount
		}
	}
	return totals
}
