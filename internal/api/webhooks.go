package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/services"
)

type createSubscriptionRequest struct {
	ProjectID string               `json:"project_id"`
	URL       string               `json:"url"`
	Triggers  []models.TriggerType `json:"triggers"`
	Secret    string               `json:"secret"`
}

func (s *Server) createSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := s.webhooks.CreateSubscription(c.Request.Context(), services.CreateSubscriptionRequest{
		ProjectID: req.ProjectID,
		URL:       req.URL,
		Triggers:  req.Triggers,
		Secret:    req.Secret,
	})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, err := s.webhooks.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
