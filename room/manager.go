package room

import (
	"sort"
	"sync"

	"github.com/wfunc/roulette/logger"
)

// Manager 管理所有房间。
// Lock order is manager mutex before room mutex; rooms never call back into
// the manager.
type Manager struct {
	rooms   map[string]*Room
	mutex   sync.RWMutex
	options Options
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(options Options) *Manager {
	if options.Recorder == nil {
		options.Recorder = nopRecorder{}
	}
	return &Manager{
		rooms:   make(map[string]*Room),
		options: options,
	}
}

// GetOrCreate returns the room for id, creating it on first reference. A room
// closed by an internal fault is replaced.
func (m *Manager) GetOrCreate(id string) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.getOrCreateLocked(id)
}

func (m *Manager) getOrCreateLocked(id string) *Room {
	if room, exists := m.rooms[id]; exists && !room.Closed() {
		return room
	}

	room := NewRoom(id, m.options)
	m.rooms[id] = room
	m.options.Recorder.SetActiveRooms(len(m.rooms))
	logger.Log.Infof("Room %s created", id)
	return room
}

// Join adds a named player to the room, creating the room if needed.
func (m *Manager) Join(roomID, name string, onJoined JoinFunc) (*Room, Player, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room := m.getOrCreateLocked(roomID)
	player, err := room.Join(name, onJoined)
	if err != nil {
		if room.PlayerCount() == 0 {
			m.removeLocked(roomID)
		}
		return nil, Player{}, err
	}
	return room, player, nil
}

// Leave removes a player and destroys the room once it is empty. It reports
// whether the room was destroyed.
func (m *Manager) Leave(roomID, playerID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return false
	}

	remaining, _ := room.Leave(playerID)
	if remaining > 0 {
		return false
	}
	m.removeLocked(roomID)
	return true
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) {
	if room, exists := m.rooms[id]; exists {
		room.Close()
		delete(m.rooms, id)
		m.options.Recorder.SetActiveRooms(len(m.rooms))
		logger.Log.Infof("Room %s destroyed", id)
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// RoomIDs returns the ids of all live rooms, sorted.
func (m *Manager) RoomIDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
