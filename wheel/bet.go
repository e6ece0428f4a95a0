// wheel/bet.go
package wheel

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// BetType 下注类型
type BetType string

const (
	BetNumber BetType = "number"
	BetColor  BetType = "color"
	BetParity BetType = "parity"
	BetRange  BetType = "range"
	BetDozen  BetType = "dozen"
)

const (
	ParityEven = "even"
	ParityOdd  = "odd"
	RangeLow   = "low"
	RangeHigh  = "high"
)

// ErrInvalidBet is returned when a bet's type or value has the wrong shape.
var ErrInvalidBet = errors.New("invalid_bet")

var multipliers = map[BetType]int64{
	BetNumber: 35,
	BetColor:  1,
	BetParity: 1,
	BetRange:  1,
	BetDozen:  2,
}

// Value holds a bet's type-specific value. Clients send numbers and dozens as
// JSON numbers and everything else as strings; both decode into the same
// textual form.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = Value(n.String())
	return nil
}

// Int parses the value as a base-10 integer in canonical form. Signs, leading
// zeros and surrounding space are rejected, so "+7" and "07" are not 7.
func (v Value) Int() (int, bool) {
	n, err := strconv.Atoi(string(v))
	if err != nil || strconv.Itoa(n) != string(v) {
		return 0, false
	}
	return n, true
}

// Bet 一笔下注，下注后不可修改
type Bet struct {
	Type   BetType `json:"type"`
	Value  Value   `json:"value"`
	Amount int64   `json:"amount"`
	Round  int     `json:"round"`
}

// Validate checks the type-specific shape of the bet. Amount is checked by
// the room, which owns the balance.
func (b Bet) Validate() error {
	switch b.Type {
	case BetNumber:
		if n, ok := b.Value.Int(); ok && n >= 0 && n < Pockets {
			return nil
		}
	case BetColor:
		if Color(b.Value) == ColorRed || Color(b.Value) == ColorBlack {
			return nil
		}
	case BetParity:
		if b.Value == ParityEven || b.Value == ParityOdd {
			return nil
		}
	case BetRange:
		if b.Value == RangeLow || b.Value == RangeHigh {
			return nil
		}
	case BetDozen:
		if n, ok := b.Value.Int(); ok && n >= 1 && n <= 3 {
			return nil
		}
	}
	return ErrInvalidBet
}

// Spot is the display key of the table position the bet covers, e.g. "color:red".
func (b Bet) Spot() string {
	value := string(b.Value)
	if n, ok := b.Value.Int(); ok {
		value = strconv.Itoa(n)
	}
	return string(b.Type) + ":" + value
}

// Multiplier returns the winnings multiplier on stake for a bet type.
func Multiplier(t BetType) int64 {
	return multipliers[t]
}

// Wins reports whether the bet wins against the drawn number.
func (b Bet) Wins(number int) bool {
	switch b.Type {
	case BetNumber:
		n, ok := b.Value.Int()
		return ok && n == number
	case BetColor:
		return number != 0 && Color(b.Value) == ColorOf(number)
	case BetParity:
		return ParityOf(number) != "" && string(b.Value) == ParityOf(number)
	case BetRange:
		return RangeOf(number) != "" && string(b.Value) == RangeOf(number)
	case BetDozen:
		n, ok := b.Value.Int()
		return ok && DozenOf(number) != 0 && n == DozenOf(number)
	}
	return false
}

// Payout returns the chips credited for the bet: stake times the type's
// multiplier on a win, nothing on a loss. The escrowed stake itself is never
// returned, so a winning red bet of 100 credits 100 and leaves the balance
// where it was before the bet.
func (b Bet) Payout(number int) int64 {
	if !b.Wins(number) {
		return 0
	}
	return b.Amount * Multiplier(b.Type)
}
