package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
)

// clientBuffer is how many frames a slow client may lag before it is
// disconnected.
const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// connect registers conn with first already queued, then starts its
// writer and close watcher. Once Stop has begun the connection is refused.
// Registration and wg.Add share s.mu with disconnectAll, so every Add
// happens before Stop reaches wg.Wait.
func (s *Server) connect(conn *websocket.Conn, first []byte) bool {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	c.send <- first

	s.mu.Lock()
	if s.base.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return false
	}
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.wg.Add(2)
	s.mu.Unlock()
	s.logger.Debug("client connected", "clients", n)

	go s.writeTo(c)
	go s.watchClose(c)
	return true
}

// writeTo drains c.send until it is closed or a write fails.
func (s *Server) writeTo(c *client) {
	defer s.wg.Done()

	for frame := range c.send {
		ctx, cancel := context.WithTimeout(s.base, writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			s.logger.Debug("write to client failed", "error", err)
			s.disconnect(c, websocket.StatusGoingAway)
			return
		}
	}
}

// watchClose returns once the peer closes the connection or the server
// stops. Incoming frames are discarded.
func (s *Server) watchClose(c *client) {
	defer s.wg.Done()

	<-c.conn.CloseRead(s.base).Done()
	s.disconnect(c, websocket.StatusNormalClosure)
}

// disconnect removes c if it is still registered. Safe to call repeatedly.
func (s *Server) disconnect(c *client, code websocket.StatusCode) {
	s.mu.Lock()
	_, ok := s.clients[c]
	if ok {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.mu.Unlock()

	if ok {
		_ = c.conn.Close(code, "")
		s.logger.Debug("client disconnected", "clients", n)
	}
}

func (s *Server) disconnectAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.disconnect(c, websocket.StatusGoingAway)
	}
}

// Broadcast queues msg for every connected client without blocking.
// A client whose buffer is full is disconnected.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal message", "type", msg.Type, "error", err)
		return
	}

	var slow []*client
	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.logger.Warn("dropping slow dashboard client", "type", msg.Type)
		s.disconnect(c, websocket.StatusPolicyViolation)
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
