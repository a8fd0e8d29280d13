package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	sendBufferSize = 64
)

// LiveClient is one websocket viewer
type LiveClient struct {
	hub        *LiveHub
	conn       *websocket.Conn
	send       chan []byte
	cameras    map[string]bool
	camerasMu  sync.RWMutex
	cred       credentials.Credential
	zones      []string
	subject    string
	remoteAddr string
}

// NewLiveClient creates a client; zone-scoped credentials limit what it sees
func NewLiveClient(hub *LiveHub, conn *websocket.Conn, cred credentials.Credential, remoteAddr string) *LiveClient {
	return &LiveClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		cameras:    make(map[string]bool),
		cred:       cred,
		zones:      cred.Zones,
		subject:    cred.Subject,
		remoteAddr: remoteAddr,
	}
}

// ReadPump handles subscribe/unsubscribe/ping until the peer goes away
func (c *LiveClient) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket error", zap.String("remote", c.remoteAddr), zap.Error(err))
			}
			break
		}

		var msg LiveMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendJSON(LiveMessage{Type: MessageError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "subscribe":
			if err := c.hub.Subscribe(ctx, c, msg.Camera); err != nil {
				c.hub.logger.Warn("Live subscribe failed", zap.String("camera", msg.Camera), zap.Error(err))
				c.sendJSON(LiveMessage{Type: MessageError, Camera: msg.Camera, Error: err.Error()})
			}
		case "unsubscribe":
			c.hub.Unsubscribe(c, msg.Camera)
		case "ping":
			c.sendJSON(LiveMessage{Type: MessagePong})
		default:
			c.sendJSON(LiveMessage{Type: MessageError, Error: "unknown message type: " + msg.Type})
		}
	}
}

// WritePump drains the send queue to the websocket
func (c *LiveClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *LiveClient) allowsZone(zone string) bool {
	if len(c.zones) == 0 {
		return true
	}
	for _, z := range c.zones {
		if z == zone {
			return true
		}
	}
	return false
}

func (c *LiveClient) addCamera(key string) {
	c.camerasMu.Lock()
	c.cameras[key] = true
	c.camerasMu.Unlock()
}

func (c *LiveClient) removeCamera(key string) {
	c.camerasMu.Lock()
	delete(c.cameras, key)
	c.camerasMu.Unlock()
}

func (c *LiveClient) cameraKeys() []string {
	c.camerasMu.RLock()
	defer c.camerasMu.RUnlock()
	keys := make([]string, 0, len(c.cameras))
	for k := range c.cameras {
		keys = append(keys, k)
	}
	return keys
}

func (c *LiveClient) sendJSON(msg LiveMessage) {
	c.trySend(mustJSON(msg))
}

// trySend drops the message when the client is not keeping up
func (c *LiveClient) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}
