package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hankl/microbot/internal/bus"
)

// upgrader accepts any origin: the server binds inside a trusted
// network and transports carry no authentication (out of scope).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsWriteTimeout bounds a single frame write so one stuck client
// cannot pin a handler goroutine.
const wsWriteTimeout = 10 * time.Second

// wsConn wraps a websocket connection with a write lock. Replies for
// one connection may be produced by concurrent message handlers, and
// gorilla connections allow only one concurrent writer.
type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

// deliver writes one envelope to the connection.
func (c *wsConn) deliver(out bus.Outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(out); err != nil {
		c.logger.Debug("websocket write failed", "error", err)
	}
}

// handleWS upgrades the connection and reads inbound messages until
// the client disconnects. Each message is processed as an independent
// task; the reply is addressed to this originating connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn, logger: s.logger}
	s.logger.Info("websocket connected", "remote", conn.RemoteAddr().String())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("websocket closed", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}

		var msg bus.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.deliver(bus.ErrorReply("invalid message format", err))
			continue
		}

		go s.processWS(c, msg)
	}
}

// processWS runs one inbound message through the orchestrator and
// delivers the result. Validation failures are dropped after logging:
// no session exists for them and no reply is owed.
func (s *Server) processWS(c *wsConn, msg bus.InboundMessage) {
	out, err := s.handle(s.baseCtx, msg)
	if err != nil {
		s.logger.Warn("rejected invalid inbound message", "error", err)
		return
	}
	c.deliver(out)
}
