package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/roulette/broadcast"
	"github.com/wfunc/roulette/config"
	"github.com/wfunc/roulette/logger"
	"github.com/wfunc/roulette/monitor"
	"github.com/wfunc/roulette/network"
	"github.com/wfunc/roulette/room"
	roulette_rpc "github.com/wfunc/roulette/rpc"
	"github.com/wfunc/roulette/session"
	"github.com/wfunc/roulette/timer"
	"github.com/wfunc/roulette/wheel"
)

const (
	defaultPlayerName = "Guest"
	codeAlreadyInRoom = "already_in_room"
)

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	timers         *timer.TimerManager
	monitor        *monitor.Monitor
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.RoomBroadcaster
	rpcServer      *roulette_rpc.Server
	healthServer   *roulette_rpc.HealthServer
	httpServer     *http.Server
	cancel         context.CancelFunc
	mutex          sync.Mutex
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

// NewGameServer wires the game components. Nothing listens until Start.
func NewGameServer(cfg *config.Config) *GameServer {
	return newGameServer(cfg, clockwork.NewRealClock(), wheel.CryptoGenerator{})
}

func newGameServer(cfg *config.Config, clock clockwork.Clock, generator wheel.Generator) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		timers:         timer.NewTimerManager(clock, cfg.Game.TimerResolution),
		monitor:        monitor.NewMonitor(cfg.Server.MetricsNamespace, prometheus.NewRegistry()),
		sessionManager: session.NewManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)

	s.roomManager = room.NewRoomManager(room.Options{
		Settings: room.Settings{
			MaxPlayers:      cfg.Game.MaxPlayers,
			StartingBalance: cfg.Game.StartingBalance,
			BettingWindow:   cfg.Game.BettingWindow,
			SpinDelay:       cfg.Game.SpinDelay,
			TickInterval:    cfg.Game.TickInterval,
			HistoryLimit:    cfg.Game.HistoryLimit,
		},
		Clock:       clock,
		Scheduler:   s.timers,
		Generator:   generator,
		Broadcaster: s.broadcaster,
		Recorder:    s.monitor,
		OnClosed:    s.releaseClosedRoom,
	})

	return s
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start runs the scheduler and the auxiliary listeners, then blocks serving
// WebSocket clients until Shutdown.
func (s *GameServer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	rpcServer, err := roulette_rpc.NewServer(s.cfg.Server.RPCAddress, s.roomManager)
	if err != nil {
		cancel()
		return err
	}
	healthServer, err := roulette_rpc.NewHealthServer(s.cfg.Server.HealthAddress)
	if err != nil {
		cancel()
		rpcServer.Stop()
		return err
	}

	s.mutex.Lock()
	s.cancel = cancel
	s.rpcServer = rpcServer
	s.healthServer = healthServer
	s.httpServer = &http.Server{Addr: s.cfg.Server.HTTPAddress, Handler: s.Handler()}
	httpServer := s.httpServer
	s.mutex.Unlock()

	go s.timers.Run(ctx)
	go rpcServer.Start()
	go healthServer.Start()
	s.monitor.StartServer(s.cfg.Server.MetricsAddress)

	healthServer.SetServing(true)
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		if s.healthServer != nil {
			s.healthServer.SetServing(false)
			s.healthServer.Stop()
		}
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.monitor.Close()

		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		for _, id := range s.roomManager.RoomIDs() {
			s.roomManager.RemoveRoom(id)
		}
	})
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn))
}

func (s *GameServer) handleConnection(conn network.Connection) {
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	if s.cfg.Server.Heartbeat > 0 {
		conn.SetHeartbeat(s.cfg.Server.Heartbeat)
	}

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		// 断线等同于离开房间，未结算的下注作废
		s.leave(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		conn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := conn.ReadPacket()
			if errors.Is(err, io.ErrShortBuffer) {
				logger.Log.Debugf("Session %s sent a malformed frame", sess.GetID())
				continue
			}
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.monitor.IncMessagesReceived(packet.MsgID)
	defer func() {
		s.monitor.ObserveMessageLatency(time.Since(start))
	}()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		// 读到任何帧都会延长读超时
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.leave(sess)
	case network.MsgTypePlaceBet:
		s.handlePlaceBet(sess, packet)
	default:
		logger.Log.Debugf("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req JoinRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			logger.Log.Debugf("Session %s sent malformed join: %v", sess.GetID(), err)
			return
		}
	}
	if s.boundToLiveRoom(sess) {
		s.sendError(sess, codeAlreadyInRoom)
		return
	}
	if req.RoomID == "" {
		req.RoomID = s.cfg.Game.DefaultRoom
	}
	if req.Name == "" {
		req.Name = defaultPlayerName
	}

	_, player, err := s.roomManager.Join(req.RoomID, req.Name, func(p room.Player, snap room.Snapshot) {
		// 先绑定会话，随后的房间广播才能送达
		sess.Bind(req.RoomID, p.ID)
		s.send(sess, network.MsgTypeJoined, JoinedMessage{PlayerID: p.ID, Room: snap})
	})
	if err != nil {
		logger.Log.Infof("Session %s failed to join room %s: %v", sess.GetID(), req.RoomID, err)
		s.sendError(sess, room.ErrorCode(err))
		return
	}

	logger.Log.Infof("Session %s joined room %s as %s", sess.GetID(), req.RoomID, player.ID)
}

// boundToLiveRoom reports whether the session's player still sits in an open
// room. A binding left over from a closed or replaced room is dropped.
func (s *GameServer) boundToLiveRoom(sess *session.Session) bool {
	roomID, playerID := sess.RoomID(), sess.PlayerID()
	if roomID == "" {
		return false
	}
	if r, exists := s.roomManager.GetRoom(roomID); exists && !r.Closed() {
		if _, seated := r.Player(playerID); seated {
			return true
		}
	}
	sess.Unbind()
	return false
}

// releaseClosedRoom unbinds the sessions of a room closed by an internal
// fault. It runs under that room's lock and only touches sessions.
func (s *GameServer) releaseClosedRoom(roomID string, playerIDs []string) {
	for _, playerID := range playerIDs {
		sess, ok := s.sessionManager.GetByPlayerID(playerID)
		if !ok || sess.RoomID() != roomID {
			continue
		}
		sess.Unbind()
		logger.Log.Infof("Session %s released from closed room %s", sess.GetID(), roomID)
	}
}

func (s *GameServer) leave(sess *session.Session) {
	roomID, playerID := sess.Unbind()
	if roomID == "" {
		return
	}
	if s.roomManager.Leave(roomID, playerID) {
		logger.Log.Infof("Session %s left room %s, room destroyed", sess.GetID(), roomID)
	}
}

func (s *GameServer) handlePlaceBet(sess *session.Session, packet *network.Packet) {
	var req PlaceBetRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		logger.Log.Debugf("Session %s sent malformed bet: %v", sess.GetID(), err)
		return
	}

	err := s.placeBet(sess, req)
	if err != nil {
		s.send(sess, network.MsgTypeBetAck, BetAck{OK: false, Error: room.ErrorCode(err)})
		return
	}
	s.send(sess, network.MsgTypeBetAck, BetAck{OK: true})
}

func (s *GameServer) placeBet(sess *session.Session, req PlaceBetRequest) error {
	roomID, playerID := sess.RoomID(), sess.PlayerID()
	if roomID == "" || (req.PlayerID != "" && req.PlayerID != playerID) {
		return room.ErrPlayerNotFound
	}

	r, exists := s.roomManager.GetRoom(roomID)
	if !exists {
		return room.ErrPlayerNotFound
	}
	return r.PlaceBet(playerID, req.Bet.toBet())
}

func (s *GameServer) sendError(sess *session.Session, code string) {
	s.send(sess, network.MsgTypeError, room.ErrorMessage{Code: code})
}

func (s *GameServer) send(sess *session.Session, msgID uint16, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorf("Failed to marshal message %d: %v", msgID, err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugf("Send %d to session %s failed: %v", msgID, sess.GetID(), err)
	}
}
