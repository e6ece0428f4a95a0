// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/roulette/network"
)

// Session 对应一个客户端连接。
// A session is bound to at most one room and one player at a time.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time
	playerID  string
	roomID    string
	mutex     sync.RWMutex
	sendMutex sync.Mutex
}

func NewSession(id string, conn network.Connection) *Session {
	return &Session{
		ID:        id,
		Conn:      conn,
		CreatedAt: time.Now(),
	}
}

// Bind attaches the session to a player in a room.
func (s *Session) Bind(roomID, playerID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
	s.playerID = playerID
}

// Unbind detaches the session and returns what it was bound to.
func (s *Session) Unbind() (roomID, playerID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	roomID, playerID = s.roomID, s.playerID
	s.roomID, s.playerID = "", ""
	return roomID, playerID
}

func (s *Session) RoomID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

func (s *Session) PlayerID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.playerID
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of every session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// GetByRoomID returns the sessions currently bound to roomID.
func (m *Manager) GetByRoomID(roomID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.RoomID() == roomID {
			result = append(result, session)
		}
	}
	return result
}

// GetByPlayerID finds the session bound to a player.
func (m *Manager) GetByPlayerID(playerID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, session := range m.sessions {
		if session.PlayerID() == playerID {
			return session, true
		}
	}
	return nil, false
}
