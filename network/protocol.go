package network

// 消息ID，帧格式: 2字节消息ID + 2字节数据长度 + JSON 数据
const (
	MsgTypeHeartbeat  = 1
	MsgTypeJoinRoom   = 101
	MsgTypeLeaveRoom  = 102
	MsgTypeJoined     = 110
	MsgTypePlaceBet   = 201
	MsgTypeBetAck     = 210
	MsgTypeRoomUpdate = 301
	MsgTypeTimer      = 302
	MsgTypeSpinResult = 303
	MsgTypeError      = 400
)

// MaxPayloadSize is the largest payload the 16-bit length field can carry.
const MaxPayloadSize = 1<<16 - 1
