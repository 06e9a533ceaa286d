package api

import (
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// streamBot upgrades to a websocket and hands the connection to
// internal/realtime.Manager, which drives its entire lifetime. The bot id
// in the URL is informational only (a convenience for clients and
// reverse-proxy routing) — subscription to a specific bot's channel
// happens via a "subscribe" client message, same as any other channel.
func (s *Server) streamBot(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.realtime.HandleConnection(c.Request.Context(), conn)
}
