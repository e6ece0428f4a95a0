package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/roulette/logger"
	"github.com/wfunc/roulette/network"
)

// gorilla/websocket 不支持并发写
var writeMutex sync.Mutex

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, payload interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	writeMutex.Lock()
	defer writeMutex.Unlock()
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	roomID := flag.String("room", "main", "room to join")
	name := flag.String("name", "Guest", "display name")
	flag.Parse()

	logger.InitDevelopment()
	defer logger.Sync()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	var (
		playerMutex sync.Mutex
		playerID    string
	)

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				logger.Log.Warnf("Received invalid packet of size %d", len(message))
				continue
			}
			switch packet.MsgID {
			case network.MsgTypeTimer:
				// 倒计时太频繁，不打印
				continue
			case network.MsgTypeJoined:
				var joined struct {
					PlayerID string `json:"playerId"`
				}
				if json.Unmarshal(packet.Data, &joined) == nil {
					playerMutex.Lock()
					playerID = joined.PlayerID
					playerMutex.Unlock()
				}
			}
			logger.Log.Infof("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
		}
	}()

	// heartbeat
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
					return
				}
			}
		}
	}()

	logger.Log.Infof("Joining room %s as %s", *roomID, *name)
	if err := send(c, network.MsgTypeJoinRoom, map[string]string{"roomId": *roomID, "name": *name}); err != nil {
		logger.Log.Errorf("Write error: %v", err)
		return
	}

	logger.Log.Info("Commands: bet <type> <value> <amount> | leave | quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			writeMutex.Lock()
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMutex.Unlock()
			if err != nil {
				logger.Log.Warnf("Write close error: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok || text == "quit" {
				return
			}
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "leave":
				send(c, network.MsgTypeLeaveRoom, nil)
			case "bet":
				if len(fields) != 4 {
					logger.Log.Warn("usage: bet <type> <value> <amount>")
					continue
				}
				amount, err := strconv.ParseInt(fields[3], 10, 64)
				if err != nil {
					logger.Log.Warnf("bad amount %q", fields[3])
					continue
				}
				playerMutex.Lock()
				id := playerID
				playerMutex.Unlock()
				bet := map[string]interface{}{
					"playerId": id,
					"bet": map[string]interface{}{
						"type":   fields[1],
						"value":  fields[2],
						"amount": amount,
					},
				}
				if err := send(c, network.MsgTypePlaceBet, bet); err != nil {
					logger.Log.Errorf("Write error: %v", err)
					return
				}
				logger.Log.Infof("-> SENT: bet %s %s %d", fields[1], fields[2], amount)
			default:
				logger.Log.Warnf("unknown command %q", fields[0])
			}
		}
	}
}
