package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wsMessage struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

// wheelClient talks to the spinwheel server over HTTP and WebSocket.
type wheelClient struct {
	base *url.URL
	http *http.Client

	mu   sync.Mutex // WebSocketの書き込みは1本ずつ
	conn *websocket.Conn
}

func newWheelClient(server string) (*wheelClient, error) {
	base, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", server)
	}
	return &wheelClient{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *wheelClient) wsURL() string {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// signIn posts an identity token to /api/session.
func (c *wheelClient) signIn(ctx context.Context, token string) error {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return err
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("sign in rejected (%d): %s", resp.StatusCode, e.Message)
	}
	return nil
}

func (c *wheelClient) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.wsURL(), err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// readLoop forwards server messages until the connection closes.
func (c *wheelClient) readLoop(out chan<- wsMessage) error {
	defer close(out)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		out <- msg
	}
}

func (c *wheelClient) send(msgType string, data interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wheelClient) spin(targetID string) error {
	return c.send("spin", map[string]string{"target_id": targetID})
}

func (c *wheelClient) nudge(direction string) error {
	return c.send("nudge", map[string]string{"direction": direction})
}

func (c *wheelClient) sync() error {
	return c.send("sync", nil)
}

func (c *wheelClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}
