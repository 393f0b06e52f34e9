package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatterbox/pkg/errors"
	"chatterbox/pkg/messaging"
	"chatterbox/pkg/protocol"
)

// Keepalive tuning. A peer that stops answering pings for pongWait is
// torn down so its presence binding cannot outlive the connection.
var (
	pongWait     = 90 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checking is the reverse proxy's job
	},
}

// wsClient is one websocket connection's outbound side. Sends are a
// non-blocking hand-off into the buffered channel; the write pump owns
// the actual socket writes.
type wsClient struct {
	conn   *websocket.Conn
	send   chan *protocol.Event
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan *protocol.Event, 256),
	}
}

// Send queues an event for the write pump. A full buffer drops the event
// rather than blocking the coordination core.
func (c *wsClient) Send(ev *protocol.Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errors.ErrConnectionClosed
	}

	select {
	case c.send <- ev:
		return nil
	default:
		return errors.ErrSendBufferFull
	}
}

// Close shuts the connection down exactly once
func (c *wsClient) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
		c.conn.Close()
	})
	return nil
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
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

// handleWebSocket upgrades the connection and runs its read loop. The
// socket stays anonymous until a connect event binds it to an identity.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn)
	peer := messaging.NewPeer(client)

	go client.writePump()
	s.readPump(peer, client)
}

// readPump decodes inbound frames and dispatches them until the
// connection drops, then tears down everything the identity held.
func (s *Server) readPump(peer *messaging.Peer, client *wsClient) {
	defer s.teardown(peer, client)

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev protocol.Event
		if err := client.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read error", "identity", peer.Identity(), "error", err)
			}
			return
		}

		if err := s.dispatcher.Dispatch(peer, &ev); err != nil {
			// Rejected events never mutate state; the client is told
			// what it got wrong.
			s.log.Debug("event rejected", "type", ev.Type, "identity", peer.Identity(), "error", err)
			if out, buildErr := protocol.NewEvent(protocol.EventError, protocol.ErrorPayload{
				Code:    http.StatusBadRequest,
				Message: err.Error(),
			}); buildErr == nil {
				client.Send(out)
			}
		}
	}
}

// teardown atomically clears the presence binding, ends any live calls
// the identity was part of, and tells everyone who is left.
func (s *Server) teardown(peer *messaging.Peer, client *wsClient) {
	defer client.Close()

	email := peer.Identity()
	if email == "" {
		return
	}

	// A stale socket that was already replaced by a reconnect must not
	// knock the fresh binding offline; Disconnect only acts when this
	// client still owns the binding.
	if !s.registry.Disconnect(email, client) {
		return
	}

	for _, sess := range s.relay.DropParticipant(email) {
		other := sess.Caller
		if other == email {
			other = sess.Callee
		}
		ev, err := protocol.NewEvent(protocol.EventCallEnded, protocol.CallEndedPayload{Peer: email})
		if err != nil {
			continue
		}
		s.router.DeliverTo(other, ev)
	}

	s.registry.BroadcastSnapshot()
	s.log.Info("client disconnected", "identity", email)
}
