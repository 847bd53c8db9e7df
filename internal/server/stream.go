package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// handleChannelStream pushes every batch stored for the channel to a
// websocket client as a JSON telemetry event.
//
//	GET /api/v1/channels/:id/stream?tenant_id=
func (s *Server) handleChannelStream(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	if _, err := s.store.GetChannel(c.Request.Context(), tenantID, id); err != nil {
		s.fail(c, err)
		return
	}

	// Subscribe before the handshake completes so no batch stored after the
	// client connects is missed.
	sub := s.hub.Subscribe(id)
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("channel_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	s.log.Info("stream opened", zap.String("channel_id", id), zap.String("client_ip", c.ClientIP()))
	defer s.log.Info("stream closed", zap.String("channel_id", id))

	// The reader only handles control frames and notices the client leaving.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
