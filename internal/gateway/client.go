package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SubscribeMsg is the client → server request to filter advice by ticker.
// An empty ticker list means every ticker.
type SubscribeMsg struct {
	Type    string   `json:"type"` // "SUBSCRIBE" | "UNSUBSCRIBE"
	ReqID   string   `json:"reqId"`
	Tickers []string `json:"tickers"`
}

// SnapshotMsg answers a SUBSCRIBE with the latest payload of every
// matching channel.
type SnapshotMsg struct {
	Type   string                     `json:"type"` // "SNAPSHOT"
	ReqID  string                     `json:"reqId"`
	Latest map[string]json.RawMessage `json:"latest"`
}

// ErrorMsg reports a rejected client request.
type ErrorMsg struct {
	Type    string `json:"type"` // "ERROR"
	ReqID   string `json:"reqId,omitempty"`
	Message string `json:"message"`
}

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu   sync.RWMutex
	tickers map[string]bool
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		envelope := buildEnvelope(channel, entry.Data, entry.TS, c.hub.seq, entry.Seq)
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			c.sendJSON(ErrorMsg{Type: "ERROR", Message: "invalid JSON"})
			continue
		}

		switch base.Type {
		case "SUBSCRIBE", "UNSUBSCRIBE":
			var sub SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				c.sendJSON(ErrorMsg{Type: "ERROR", Message: "invalid " + base.Type + ": " + err.Error()})
				continue
			}
			if base.Type == "SUBSCRIBE" {
				c.handleSubscribe(sub)
			} else {
				c.handleUnsubscribe(sub)
			}
		default:
			if base.Ping > 0 {
				c.sendJSON(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				continue
			}
			c.sendJSON(ErrorMsg{Type: "ERROR", Message: "unknown message type " + base.Type})
		}
	}
}

func (c *Client) handleSubscribe(msg SubscribeMsg) {
	c.subMu.Lock()
	for _, t := range msg.Tickers {
		c.tickers[strings.ToUpper(t)] = true
	}
	c.subMu.Unlock()

	snap := SnapshotMsg{Type: "SNAPSHOT", ReqID: msg.ReqID, Latest: make(map[string]json.RawMessage)}
	for channel, data := range c.hub.GetLatestAll() {
		if c.matchesChannel(channel) {
			snap.Latest[channel] = data
		}
	}
	c.sendJSON(snap)
	log.Printf("[gateway] client subscribed: tickers=%v", msg.Tickers)
}

func (c *Client) handleUnsubscribe(msg SubscribeMsg) {
	c.subMu.Lock()
	for _, t := range msg.Tickers {
		delete(c.tickers, strings.ToUpper(t))
	}
	c.subMu.Unlock()
}

// matchesChannel reports whether this client should receive channel.
// Cycle and status messages always match; advice matches the ticker filter.
func (c *Client) matchesChannel(channel string) bool {
	ticker := tickerOf(channel)
	if ticker == "" {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.tickers) == 0 {
		return true
	}
	return c.tickers[strings.ToUpper(ticker)]
}

// sendJSON queues v for this client, dropping it if the client is gone
// or its buffer is full.
func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal reply: %v", err)
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
