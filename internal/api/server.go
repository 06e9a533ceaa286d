// Package api is the HTTP surface over internal/services: bot and
// recording CRUD, webhook subscription management, and a websocket
// transcript/event stream backed by internal/realtime. It is a thin
// decode -> service call -> encode layer; every validation and business
// rule lives in internal/services, not here.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetingbot/core/internal/realtime"
	"github.com/meetingbot/core/internal/services"
)

// Server wires the validated service layer to Gin routes.
type Server struct {
	engine *gin.Engine

	bots          *services.BotService
	organizations *services.OrganizationService
	recordings    *services.RecordingService
	webhooks      *services.WebhookService
	realtime      *realtime.Manager

	log *slog.Logger
}

// NewServer builds a Server and registers its routes.
func NewServer(
	bots *services.BotService,
	organizations *services.OrganizationService,
	recordings *services.RecordingService,
	webhooks *services.WebhookService,
	rt *realtime.Manager,
	log *slog.Logger,
) *Server {
	s := &Server{
		engine:        gin.New(),
		bots:          bots,
		organizations: organizations,
		recordings:    recordings,
		webhooks:      webhooks,
		realtime:      rt,
		log:           log,
	}
	s.engine.Use(gin.Recovery(), s.logRequests())
	s.routes()
	return s
}

// Handler returns the underlying http.Handler, for http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/organizations", s.createOrganization)
		v1.GET("/organizations/:id", s.getOrganization)
		v1.POST("/organizations/:id/projects", s.createProject)
		v1.GET("/projects/:id", s.getProject)

		v1.POST("/bots", s.createBot)
		v1.GET("/bots/:id", s.getBot)
		v1.POST("/bots/:id/leave", s.leaveBot)
		v1.POST("/bots/:id/pause", s.pauseBot)
		v1.POST("/bots/:id/resume", s.resumeBot)
		v1.GET("/bots/:id/recording", s.getPrimaryRecording)
		v1.POST("/bots/:id/chat", s.postChatMessage)
		v1.GET("/bots/:id/stream", s.streamBot)

		v1.GET("/recordings/:id/utterances", s.listUtterances)

		v1.POST("/webhooks/subscriptions", s.createSubscription)
		v1.GET("/webhooks/subscriptions/:id", s.getSubscription)
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// logRequests mirrors gin's default logger formatter but through slog, so
// request logs carry the same structured fields as the rest of the
// process.
func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
