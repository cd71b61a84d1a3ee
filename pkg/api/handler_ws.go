package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents upgrades the connection to WebSocket and streams the
// session's event history plus live events. The socket closes normally
// after the terminal event.
func (s *Server) streamEvents(c *gin.Context) {
	session, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedWSOrigins}
	if len(s.cfg.AllowedWSOrigins) == 0 {
		// No allowlist configured means local development; accept any
		// origin rather than rejecting everything.
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "session_id", session.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := c.Request.Context()
	events := session.Stream.Subscribe(ctx)
	for event := range events {
		writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err := wsjson.Write(writeCtx, conn, event)
		cancel()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket write failed", "session_id", session.ID, "error", err)
			}
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "stream complete")
}
