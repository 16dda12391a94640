package gateway

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rahul/orbit/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleStream upgrades to a websocket and relays hub events as JSON text
// frames until the client goes away or the hub drops the subscription. An
// optional run_id query parameter limits the stream to one run.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("Warning: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	runFilter := c.Query("run_id")
	sub := s.hub.Subscribe()
	s.observersChanged("connected")
	defer func() {
		s.hub.Unsubscribe(sub)
		s.observersChanged("disconnected")
	}()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		// Observers never send commands here; reads only detect the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				// Evicted for falling behind, or the hub is shutting down.
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if runFilter != "" && evt.RunID != runFilter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) observersChanged(action string) {
	n := s.hub.Len()
	observability.SetObservers(n)
	if s.logger != nil {
		s.logger.LogObserver(action, n)
	}
}
