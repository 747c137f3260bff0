package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSink adapts a websocket connection to the hub's Sink interface.
// Writes are serialized; the first write error closes the sink for good.
type wsSink struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (s *wsSink) Push(event models.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(event); err != nil {
		s.closed = true
		return err
	}
	return nil
}

func (s *wsSink) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *wsSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.conn.Close()
}

// subscribeFrame is what the client sends to watch an order.
type subscribeFrame struct {
	OrderID string `json:"order_id"`
}

// orderStatusWS upgrades the connection and reads subscription frames.
// Each frame registers this connection as the order's observer and sets
// the active marker. Teardown always releases every registration this
// connection holds, so an abrupt disconnect leaves nothing orphaned.
func (s *Server) orderStatusWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	sink := &wsSink{conn: conn}
	watched := make(map[string]struct{})
	ctx := c.Request.Context()

	defer func() {
		// The request context is already canceled once the connection
		// drops, so cleanup gets its own deadline.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for orderID := range watched {
			s.hub.Release(orderID, sink)
			s.hub.ClearActive(cleanupCtx, orderID)
		}
		sink.close()
	}()

	conn.SetReadLimit(512)
	for {
		var frame subscribeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.OrderID == "" {
			s.writeJSON(sink, gin.H{"error": "order_id required"})
			continue
		}
		s.hub.Register(frame.OrderID, sink)
		s.hub.SetActive(ctx, frame.OrderID, map[string]string{
			"connected_at": time.Now().UTC().Format(time.RFC3339),
		})
		watched[frame.OrderID] = struct{}{}
		s.writeJSON(sink, gin.H{"order_id": frame.OrderID, "status": "connected"})
	}
}

func (s *Server) writeJSON(sink *wsSink, payload interface{}) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.closed {
		return
	}
	sink.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := sink.conn.WriteJSON(payload); err != nil {
		sink.closed = true
	}
}
