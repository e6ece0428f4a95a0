package room

import (
	"errors"

	"github.com/wfunc/roulette/wheel"
)

// 错误的文本即为下发给客户端的错误码
var (
	ErrRoomFull          = errors.New("room_full")
	ErrRoomClosed        = errors.New("room_closed")
	ErrPlayerNotFound    = errors.New("player_not_found")
	ErrNotInBettingPhase = errors.New("not_in_betting_phase")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInsufficientChips = errors.New("insufficient_chips")
	ErrInvalidBet        = wheel.ErrInvalidBet
)

var knownErrors = []error{
	ErrRoomFull,
	ErrRoomClosed,
	ErrPlayerNotFound,
	ErrNotInBettingPhase,
	ErrInvalidAmount,
	ErrInsufficientChips,
	ErrInvalidBet,
}

// ErrorCode maps an error returned by the room to its wire code.
func ErrorCode(err error) string {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}
