package rpc

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"

	"github.com/wfunc/roulette/logger"
	"github.com/wfunc/roulette/room"
)

var ErrRoomNotFound = errors.New("room not found")

// Server manages the RPC listener.
type Server struct {
	rpcServer *rpc.Server
	listener  net.Listener
	address   string
}

// NewServer creates a new RPC server and registers the room service on it.
func NewServer(addr string, rooms *room.Manager) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("RoomService", NewRoomService(rooms)); err != nil {
		return nil, fmt.Errorf("register room service: %w", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		rpcServer: rpcServer,
		listener:  listener,
		address:   addr,
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpcServer.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService 提供只读的房间查询，供运维使用
type RoomService struct {
	rooms *room.Manager
}

func NewRoomService(rooms *room.Manager) *RoomService {
	return &RoomService{rooms: rooms}
}

// ListRoomsArgs filters by phase when Phase is set.
type ListRoomsArgs struct {
	Phase string
}

type RoomSummary struct {
	RoomID  string
	Phase   string
	Round   int
	Players int
}

type ListRoomsReply struct {
	Rooms []RoomSummary
}

// ListRooms must follow the net/rpc signature: exported method, exported
// arguments, pointer reply, error return.
func (rs *RoomService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, id := range rs.rooms.RoomIDs() {
		r, ok := rs.rooms.GetRoom(id)
		if !ok {
			continue
		}
		snap := r.Snapshot()
		if args.Phase != "" && string(snap.Phase) != args.Phase {
			continue
		}
		reply.Rooms = append(reply.Rooms, RoomSummary{
			RoomID:  id,
			Phase:   string(snap.Phase),
			Round:   snap.Round,
			Players: len(snap.Players),
		})
	}
	return nil
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	Snapshot room.Snapshot
}

func (rs *RoomService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	r, ok := rs.rooms.GetRoom(args.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	reply.Snapshot = r.Snapshot()
	return nil
}
