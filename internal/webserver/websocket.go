package webserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/spinwheel/internal/metrics"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/spinengine"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
	jsoniter "github.com/json-iterator/go"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 4096
	wsSendBuffer = 256
)

// クライアント → サーバーのコマンド
const (
	commandSpin  = "spin"
	commandNudge = "nudge"
	commandSync  = "sync"
)

// WSMessage is one WebSocket envelope. Data is raw on the way in.
type WSMessage struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

type outgoingMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSClient is one connected renderer.
type WSClient struct {
	conn        *websocket.Conn
	send        chan []byte
	clientID    string
	connectedAt time.Time
	closed      bool // sendを閉じた後はtrue（wsHub.mu で保護）
}

// WSHub fans engine events out to every client.
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte
	mu         sync.RWMutex
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var (
	wsHub = &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan []byte, 256),
	}
	wsHubOnce sync.Once
)

// StartWSHub starts the hub loop once.
func StartWSHub() {
	wsHubOnce.Do(func() {
		go wsHub.run()
	})
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(count))
			logger.Info("WebSocket client connected",
				zap.String("client_id", client.clientID),
				zap.Int("clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(count))
			logger.Info("WebSocket client disconnected",
				zap.String("client_id", client.clientID),
				zap.Duration("connected_for", time.Since(client.connectedAt)),
				zap.Int("clients", count))

		case payload := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// 詰まったクライアントは切断
					delete(h.clients, client)
					client.closed = true
					close(client.send)
					logger.Warn("WebSocket client too slow, dropping", zap.String("client_id", client.clientID))
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(count))
		}
	}
}

// ClientCount returns the number of connected clients.
func ClientCount() int {
	wsHub.mu.RLock()
	defer wsHub.mu.RUnlock()
	return len(wsHub.clients)
}

func encodeMessage(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(outgoingMessage{Type: msgType, Data: data})
}

// BroadcastWSMessage sends an event to every connected client.
func BroadcastWSMessage(msgType string, data interface{}) {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		logger.Error("Failed to marshal WebSocket message", zap.String("type", msgType), zap.Error(err))
		return
	}

	if msgType != spinengine.EventWheelFrame {
		logger.Debug("Broadcasting WebSocket message", zap.String("type", msgType))
	}

	select {
	case wsHub.broadcast <- payload:
	default:
		if msgType != spinengine.EventWheelFrame {
			logger.Warn("WebSocket broadcast queue full, dropping message", zap.String("type", msgType))
		}
	}
}

// sendTo queues a message for one client only.
func (c *WSClient) sendTo(msgType string, data interface{}) {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		logger.Error("Failed to marshal WebSocket message", zap.String("type", msgType), zap.Error(err))
		return
	}
	wsHub.mu.RLock()
	defer wsHub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		logger.Error("Failed to generate client id", zap.Error(err))
		conn.Close()
		return
	}

	client := &WSClient{
		conn:        conn,
		send:        make(chan []byte, wsSendBuffer),
		clientID:    clientID,
		connectedAt: time.Now(),
	}

	client.sendTo("connected", map[string]interface{}{
		"client_id": clientID,
		"time":      client.connectedAt.Unix(),
	})
	if engine := currentServices().Engine; engine != nil {
		client.sendTo(spinengine.EventWheelState, engine.Snapshot())
	}

	wsHub.register <- client

	go client.writePump()
	client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		wsHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.String("client_id", c.clientID), zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendTo(spinengine.EventWheelError, map[string]interface{}{
				"error":   "invalid_message",
				"message": "message must be a JSON object with a type",
			})
			continue
		}
		c.handleCommand(msg)
	}
}

func (c *WSClient) handleCommand(msg WSMessage) {
	engine := currentServices().Engine
	if engine == nil {
		c.sendTo(spinengine.EventWheelError, map[string]interface{}{
			"error":   "unavailable",
			"message": "wheel is not ready",
		})
		return
	}

	switch msg.Type {
	case commandSpin:
		var req spinRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.sendTo(spinengine.EventWheelError, map[string]interface{}{
					"error":   "invalid_message",
					"message": "invalid spin payload",
				})
				return
			}
		}
		// 成功時はspin_startedがブロードキャストされる
		if _, err := engine.RequestSpin(req.TargetID); err != nil {
			_, body := spinErrorBody(err)
			c.sendTo(spinengine.EventWheelError, body)
		}

	case commandNudge:
		var req nudgeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendTo(spinengine.EventWheelError, map[string]interface{}{
				"error":   "invalid_message",
				"message": "invalid nudge payload",
			})
			return
		}
		dir, ok := wheel.ParseDirection(req.Direction)
		if !ok {
			c.sendTo(spinengine.EventWheelError, map[string]interface{}{
				"error":   "invalid_direction",
				"message": "direction must be left or right",
			})
			return
		}
		engine.Nudge(dir)

	case commandSync:
		c.sendTo(spinengine.EventWheelState, engine.Snapshot())

	default:
		logger.Debug("Unknown WebSocket command", zap.String("client_id", c.clientID), zap.String("type", msg.Type))
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// RegisterWebSocketRoute registers the /ws endpoint.
func RegisterWebSocketRoute(mux *http.ServeMux) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		StartWSHub()
		handleWS(w, r)
	})
}
