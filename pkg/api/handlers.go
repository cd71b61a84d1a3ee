package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paperscope/paperscope/pkg/coordinator"
)

type startSessionRequest struct {
	Query string `json:"query" binding:"required"`
}

type sessionResponse struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	State     string `json:"state"`
	CreatedAt string `json:"createdAt"`
}

func toSessionResponse(s *coordinator.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		Query:     s.Query,
		State:     string(s.State()),
		CreatedAt: s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	session, err := s.manager.Start(c.Request.Context(), req.Query)
	if err != nil {
		if errors.Is(err, coordinator.ErrTooManySessions) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

func (s *Server) listSessions(c *gin.Context) {
	sessions := s.manager.Sessions()
	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionResponse(session))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) getSession(c *gin.Context) {
	session, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	resp := gin.H{"session": toSessionResponse(session)}
	if report := session.Report(); report != nil {
		resp["report"] = report
	}
	if err := session.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) stopSession(c *gin.Context) {
	if err := s.manager.Stop(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

type checkpointRequest struct {
	Action string         `json:"action" binding:"required"`
	Data   map[string]any `json:"data"`
}

func (s *Server) respondCheckpoint(c *gin.Context) {
	var req checkpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}
	err := s.manager.RespondCheckpoint(c.Param("id"), c.Param("checkpointId"), req.Action, req.Data)
	switch {
	case errors.Is(err, coordinator.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, coordinator.ErrUnknownCheckpoint):
		c.JSON(http.StatusNotFound, gin.H{"error": "checkpoint not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "resolved"})
	}
}

func (s *Server) getHealth(c *gin.Context) {
	health := s.manager.Health(c.Request.Context())
	status := http.StatusOK
	if !health.OverallHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"overall_healthy": health.OverallHealthy,
		"sources":         health.Sources,
		"active_sessions": s.manager.Active(),
	})
}
