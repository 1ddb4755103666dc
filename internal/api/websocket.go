package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 32
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS layer and the bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHub fans alert events out to connected websocket clients. A client that
// cannot keep up is dropped rather than allowed to back up the bus.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	log     *logging.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.AlertEvent
}

func newWSHub(log *logging.Logger) *wsHub {
	return &wsHub{
		clients: make(map[*wsClient]struct{}),
		log:     log.WithComponent("ws"),
	}
}

func (h *wsHub) broadcast(ev events.AlertEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()
}

// handleWS upgrades the connection and streams alert events as JSON frames.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws_upgrade_failed", "error", err.Error())
		return
	}
	client := &wsClient{conn: conn, send: make(chan events.AlertEvent, wsSendBuffer)}
	s.hub.add(client)
	s.log.Debug("ws_client_connected", "remote", conn.RemoteAddr().String())

	go s.hub.writeLoop(client)
	s.hub.readLoop(client)
}

func (h *wsHub) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop drains client frames so pings and close frames are processed. The
// stream is one-way; inbound payloads are discarded.
func (h *wsHub) readLoop(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
