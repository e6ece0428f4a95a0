package server

import (
	"bytes"
	"encoding/json"

	"github.com/wfunc/roulette/room"
	"github.com/wfunc/roulette/wheel"
)

// JoinRequest is the payload of MsgTypeJoinRoom.
type JoinRequest struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// JoinedMessage acknowledges a join to the joining session only.
type JoinedMessage struct {
	PlayerID string        `json:"playerId"`
	Room     room.Snapshot `json:"room"`
}

type PlaceBetRequest struct {
	PlayerID string     `json:"playerId"`
	Bet      BetRequest `json:"bet"`
}

type BetRequest struct {
	Type   wheel.BetType   `json:"type"`
	Value  wheel.Value     `json:"value"`
	Amount json.RawMessage `json:"amount"`
}

// toBet converts the wire bet. An amount that is not a JSON integer, quoted
// numbers included, becomes 0 so the room reports invalid_amount for it.
func (b BetRequest) toBet() wheel.Bet {
	var amount int64
	var n json.Number
	raw := bytes.TrimSpace(b.Amount)
	if len(raw) > 0 && raw[0] == '"' {
		return wheel.Bet{Type: b.Type, Value: b.Value}
	}
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			amount = v
		}
	}
	return wheel.Bet{Type: b.Type, Value: b.Value, Amount: amount}
}

type BetAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
