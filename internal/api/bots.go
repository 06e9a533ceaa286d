package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/services"
)

type createBotRequest struct {
	ProjectID        string              `json:"project_id"`
	MeetingURL       string              `json:"meeting_url"`
	Platform         models.Platform     `json:"platform"`
	Name             string              `json:"name"`
	JoinAt           *time.Time          `json:"join_at"`
	DeduplicationKey *string             `json:"deduplication_key"`
	Settings         models.BotSettings  `json:"settings"`
	Metadata         map[string]any      `json:"metadata"`
}

func (s *Server) createBot(c *gin.Context) {
	var req createBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bot, err := s.bots.CreateBot(c.Request.Context(), services.CreateBotRequest{
		ProjectID:        req.ProjectID,
		MeetingURL:       req.MeetingURL,
		Platform:         req.Platform,
		Name:             req.Name,
		JoinAt:           req.JoinAt,
		DeduplicationKey: req.DeduplicationKey,
		Settings:         req.Settings,
		Metadata:         req.Metadata,
	})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (s *Server) getBot(c *gin.Context) {
	bot, err := s.bots.GetBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) leaveBot(c *gin.Context) {
	bot, err := s.bots.LeaveBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) pauseBot(c *gin.Context) {
	bot, err := s.bots.PauseBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) resumeBot(c *gin.Context) {
	bot, err := s.bots.ResumeBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) postChatMessage(c *gin.Context) {
	var body struct {
		ParticipantID string `json:"participant_id"`
		Text          string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.recordings.PostChatMessage(c.Request.Context(), services.PostChatMessageRequest{
		BotID:         c.Param("id"),
		ParticipantID: body.ParticipantID,
		Text:          body.Text,
	})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
