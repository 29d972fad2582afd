// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The Web UI is served from the same origin as the REST API in every
	// deployment this gateway targets; a stricter allowlist would need a
	// configured list of browser origins, which isn't wired up yet.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientCommand is an inbound control message a WebSocket client sends to
// manage its subscriptions.
type clientCommand struct {
	Action  string `json:"action"` // "subscribe"|"unsubscribe"|"ping"
	Channel string `json:"channel"`
	Filter  string `json:"filter"` // optional tag/service name restriction
}

// serverAck is the reply to a subscribe/unsubscribe/ping control message.
type serverAck struct {
	Type    string `json:"type"` // "subscribed"|"unsubscribed"|"pong"|"error"
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

// subscription is one channel a connection receives events for, optionally
// restricted to a single tag or service name.
type subscription struct {
	channel string
	filter  string
}

// conn is one live WebSocket client.
type conn struct {
	ws       *websocket.Conn
	send     chan event
	username string
	role     role

	mu   sync.RWMutex
	subs map[subscription]bool
}

func (c *conn) matches(e event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for s := range c.subs {
		if s.channel != "all" && s.channel != e.Channel {
			continue
		}
		if s.filter == "" || s.filter == e.Name {
			return true
		}
	}
	return false
}

// hub tracks every connected client and fans broadcast events out to the
// ones whose subscriptions match.
type hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[*conn]bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, conns: make(map[*conn]bool)}
}

func (h *hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = true
}

func (h *hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
}

func (h *hub) broadcast(e event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if !c.matches(e) {
			continue
		}
		select {
		case c.send <- e:
		default:
			h.logger.Warn("dropping event for slow websocket client", "username", c.username, "channel", e.Channel)
		}
	}
}

// serveWS upgrades an already-authenticated request to a WebSocket and
// runs the connection's read/write pumps until it closes.
func (m *Manager) serveWS(w http.ResponseWriter, r *http.Request, username string, rl role) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws, send: make(chan event, 64), username: username, role: rl, subs: make(map[subscription]bool)}
	m.hub.register(c)

	go m.writePump(c)
	m.readPump(c)
}

func (m *Manager) readPump(c *conn) {
	defer func() {
		m.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(wsMaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(wsPongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.send <- ackEvent(serverAck{Type: "error", Error: "malformed command"})
			continue
		}
		m.handleClientCommand(c, cmd)
	}
}

func (m *Manager) handleClientCommand(c *conn, cmd clientCommand) {
	switch cmd.Action {
	case "subscribe":
		c.mu.Lock()
		c.subs[subscription{channel: cmd.Channel, filter: cmd.Filter}] = true
		c.mu.Unlock()
		c.send <- ackEvent(serverAck{Type: "subscribed", Channel: cmd.Channel})
	case "unsubscribe":
		c.mu.Lock()
		delete(c.subs, subscription{channel: cmd.Channel, filter: cmd.Filter})
		c.mu.Unlock()
		c.send <- ackEvent(serverAck{Type: "unsubscribed", Channel: cmd.Channel})
	case "ping":
		c.send <- ackEvent(serverAck{Type: "pong"})
	default:
		c.send <- ackEvent(serverAck{Type: "error", Error: "unknown action"})
	}
}

// ackEvent wraps a control-plane reply as an event so it can share the
// writePump's single send channel with data-plane broadcasts.
func ackEvent(a serverAck) event {
	raw, _ := json.Marshal(a)
	return event{Channel: "control", Type: a.Type, Payload: raw}
}

func (m *Manager) writePump(c *conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case e, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
