// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/roulette/logger"
	"github.com/wfunc/roulette/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// 基于房间的广播器。
// Rooms call it while holding their own lock, so it only touches sessions.
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

var _ Broadcaster = (*RoomBroadcaster)(nil)

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	sessions := b.sessionManager.GetByRoomID(roomID)
	if len(sessions) == 0 {
		return ErrRoomNotFound
	}

	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败由读循环负责断开
			logger.Log.Debugf("Send %d to session %s failed: %v", msgID, s.ID, err)
			continue
		}
	}

	return nil
}
